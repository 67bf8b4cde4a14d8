package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/storefront/pkg/mylogger"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"go.uber.org/zap"
)

type AuthHandler struct {
	auth     service.AuthService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewAuthHandler(auth service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		validate: validator.New(),
		logger:   logger,
	}
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,min=10,max=15"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	input := new(RegisterInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	user, token, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Password: input.Password,
	})
	if err != nil {
		return fail(c, h.logger, "register", err)
	}

	mylogger.Info(c.UserContext(), h.logger, "user registered", zap.Int64("user_id", user.ID))

	return respond(c, fiber.StatusCreated, "User registered successfully", fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	input := new(LoginInput)
	if ok, err := bind(c, h.validate, input); !ok {
		return err
	}

	user, token, err := h.auth.Login(c.UserContext(), input.Email, input.Password)
	if err != nil {
		return fail(c, h.logger, "login", err)
	}

	return respond(c, fiber.StatusOK, "Login successful", fiber.Map{
		"token": token,
		"user":  user,
	})
}
