package service_test

import (
	"fmt"
	"time"

	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
)

func (s *StorefrontSuite) TestProductCache_InvalidatedByOrders() {
	phone := s.seedProduct("phone", 100, 10)

	cached, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(int32(10), cached.Stock)
	s.Equal(int64(1), s.RedisClient.Exists(s.Ctx, fmt.Sprintf("product:%d", phone.ID)).Val())

	s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 4})
	s.Equal(int64(0), s.RedisClient.Exists(s.Ctx, fmt.Sprintf("product:%d", phone.ID)).Val())

	fresh, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(int32(6), fresh.Stock)
}

func (s *StorefrontSuite) TestProductUpdate_OwnershipAndInvalidation() {
	phone := s.seedProduct("phone", 100, 10)

	_, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().NoError(err)

	price := decimal.NewFromInt(120)
	_, err = s.ProductService.Update(s.Ctx, s.customer, domain.RoleCustomer, phone.ID, &domain.UpdateProductInput{Price: &price})
	s.Require().ErrorIs(err, domain.ErrNotProductOwner)

	updated, err := s.ProductService.Update(s.Ctx, s.seller, domain.RoleSeller, phone.ID, &domain.UpdateProductInput{Price: &price})
	s.Require().NoError(err)
	s.True(updated.Price.Equal(price))

	found, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.True(found.Price.Equal(price))
}

func (s *StorefrontSuite) TestProductDelete_HidesProduct() {
	phone := s.seedProduct("phone", 100, 10)

	s.Require().NoError(s.ProductService.Delete(s.Ctx, s.admin, domain.RoleAdmin, phone.ID))

	_, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	page, err := s.ProductService.List(s.Ctx, domain.ProductFilter{Page: 1, Limit: 10})
	s.Require().NoError(err)
	s.Equal(0, page.Total)
}

func (s *StorefrontSuite) TestAdjustStock_EmitsInventoryEvent() {
	phone := s.seedProduct("phone", 100, 2)

	product, err := s.ProductService.AdjustStock(s.Ctx, s.seller, domain.RoleSeller, phone.ID, 5)
	s.Require().NoError(err)
	s.Equal(int32(7), product.Stock)

	product, err = s.ProductService.AdjustStock(s.Ctx, s.admin, domain.RoleAdmin, phone.ID, -100)
	s.Require().NoError(err)
	s.Equal(int32(0), product.Stock)

	s.Equal(2, s.countRows(`SELECT count(*) FROM outbox WHERE event_type = 'InventoryChanged'`))
}

func (s *StorefrontSuite) TestOutboxWorker_PublishesOrderEvents() {
	phone := s.seedProduct("phone", 100, 10)
	s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	s.Require().Eventually(func() bool {
		_, err := s.OutboxWorker.ProcessBatch(s.Ctx)
		if err != nil {
			return false
		}

		return s.countRows(`SELECT count(*) FROM outbox WHERE published_at IS NULL`) == 0
	}, 30*time.Second, 500*time.Millisecond)
}
