package service_test

import (
	"github.com/sakashimaa/storefront/services/storefront/internal/auth"
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
)

func (s *StorefrontSuite) register(email string) *domain.User {
	user, token, err := s.AuthService.Register(s.Ctx, service.RegisterInput{
		Name:     "Ravi",
		Email:    email,
		Phone:    "9123456780",
		Password: "hunter2hunter2",
	})
	s.Require().NoError(err)
	s.NotEmpty(token)

	return user
}

func (s *StorefrontSuite) TestRegister() {
	user := s.register("  Ravi@Example.com ")

	s.Equal("ravi@example.com", user.Email)
	s.Equal(domain.RoleCustomer, user.Role)
	s.NotEqual("hunter2hunter2", user.PasswordHash)

	_, _, err := s.AuthService.Register(s.Ctx, service.RegisterInput{Name: "Dup", Email: "ravi@example.com", Password: "hunter2hunter2"})
	s.Require().ErrorIs(err, repository.ErrUserAlreadyExists)

	_, _, err = s.AuthService.Register(s.Ctx, service.RegisterInput{Name: "Weak", Email: "weak@example.com", Password: "password"})
	s.Require().ErrorIs(err, auth.ErrPasswordTooWeak)
}

func (s *StorefrontSuite) TestLogin_AuthenticatesToken() {
	user := s.register("ravi@example.com")

	logged, token, err := s.AuthService.Login(s.Ctx, "RAVI@example.com", "hunter2hunter2")
	s.Require().NoError(err)
	s.Equal(user.ID, logged.ID)

	resolved, err := s.AuthService.Authenticate(s.Ctx, token)
	s.Require().NoError(err)
	s.Equal(user.ID, resolved.ID)

	_, err = s.AuthService.Authenticate(s.Ctx, token+"x")
	s.Require().ErrorIs(err, auth.ErrTokenInvalid)
}

func (s *StorefrontSuite) TestLogin_LocksAfterRepeatedFailures() {
	s.register("ravi@example.com")

	for i := 1; i < domain.MaxLoginAttempts; i++ {
		_, _, err := s.AuthService.Login(s.Ctx, "ravi@example.com", "wrong-pass-1")
		s.Require().ErrorIs(err, service.ErrInvalidCredentials)
	}

	_, _, err := s.AuthService.Login(s.Ctx, "ravi@example.com", "wrong-pass-1")
	s.Require().ErrorIs(err, service.ErrAccountLocked)

	_, _, err = s.AuthService.Login(s.Ctx, "ravi@example.com", "hunter2hunter2")
	s.Require().ErrorIs(err, service.ErrAccountLocked)

	_, _, err = s.AuthService.Login(s.Ctx, "nobody@example.com", "hunter2hunter2")
	s.Require().ErrorIs(err, service.ErrInvalidCredentials)
}

func (s *StorefrontSuite) TestLogin_SuccessResetsAttempts() {
	s.register("ravi@example.com")

	for i := 0; i < 3; i++ {
		_, _, err := s.AuthService.Login(s.Ctx, "ravi@example.com", "wrong-pass-1")
		s.Require().ErrorIs(err, service.ErrInvalidCredentials)
	}

	_, _, err := s.AuthService.Login(s.Ctx, "ravi@example.com", "hunter2hunter2")
	s.Require().NoError(err)

	for i := 1; i < domain.MaxLoginAttempts; i++ {
		_, _, err := s.AuthService.Login(s.Ctx, "ravi@example.com", "wrong-pass-1")
		s.Require().ErrorIs(err, service.ErrInvalidCredentials)
	}
}
