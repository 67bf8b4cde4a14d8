package service_test

import (
	"github.com/sakashimaa/storefront/services/storefront/internal/domain"
	"github.com/sakashimaa/storefront/services/storefront/internal/repository"
	"github.com/sakashimaa/storefront/services/storefront/internal/service"
	"github.com/shopspring/decimal"
)

func (s *StorefrontSuite) seedCatalogProduct(p domain.Product) *domain.Product {
	p.SellerID = s.seller
	s.Require().NoError(s.ProductRepo.Create(s.Ctx, &p))
	return &p
}

// seedCatalog creates three active products spread across categories, brands, prices and tags.
func (s *StorefrontSuite) seedCatalog() (phone, cover, laptop *domain.Product) {
	phone = s.seedCatalogProduct(domain.Product{
		Name: "phone", Category: "electronics", Brand: "Acme",
		Price: decimal.NewFromInt(500), Stock: 5, Tags: []string{"5g", "android"},
	})
	cover = s.seedCatalogProduct(domain.Product{
		Name: "cover", Category: "accessories", Brand: "Shield",
		Price: decimal.NewFromInt(50), Stock: 0, Tags: []string{"android"},
	})
	laptop = s.seedCatalogProduct(domain.Product{
		Name: "laptop", Category: "electronics", Brand: "Zen",
		Price: decimal.NewFromInt(1500), Stock: 2, Tags: []string{"work"}, IsFeatured: true,
	})

	return phone, cover, laptop
}

func (s *StorefrontSuite) listNames(filter domain.ProductFilter) []string {
	page, err := s.ProductService.List(s.Ctx, filter)
	s.Require().NoError(err)

	names := make([]string, 0, len(page.Items))
	for _, p := range page.Items {
		names = append(names, p.Name)
	}

	s.Equal(len(names), page.Total)
	return names
}

func (s *StorefrontSuite) TestListProducts_Filters() {
	s.seedCatalog()

	minPrice := decimal.NewFromInt(100)
	maxPrice := decimal.NewFromInt(1000)

	tests := []struct {
		name   string
		filter domain.ProductFilter
		want   []string
	}{
		{name: "brand is case insensitive", filter: domain.ProductFilter{Brand: "acme"}, want: []string{"phone"}},
		{name: "price range", filter: domain.ProductFilter{MinPrice: &minPrice, MaxPrice: &maxPrice}, want: []string{"phone"}},
		{name: "min price only", filter: domain.ProductFilter{MinPrice: &minPrice, Sort: domain.SortPriceAsc}, want: []string{"phone", "laptop"}},
		{name: "in stock", filter: domain.ProductFilter{InStock: true, Sort: domain.SortPriceAsc}, want: []string{"phone", "laptop"}},
		{name: "any tag", filter: domain.ProductFilter{Tags: []string{"android", "work"}, Sort: domain.SortPriceAsc}, want: []string{"cover", "phone", "laptop"}},
		{name: "tag", filter: domain.ProductFilter{Tags: []string{"5g"}}, want: []string{"phone"}},
		{name: "category and stock", filter: domain.ProductFilter{Category: "accessories", InStock: true}, want: []string{}},
		{name: "price ascending", filter: domain.ProductFilter{Sort: domain.SortPriceAsc}, want: []string{"cover", "phone", "laptop"}},
		{name: "price descending", filter: domain.ProductFilter{Sort: domain.SortPriceDesc}, want: []string{"laptop", "phone", "cover"}},
		{name: "newest", filter: domain.ProductFilter{Sort: domain.SortNewest}, want: []string{"laptop", "cover", "phone"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, s.listNames(tt.filter))
		})
	}

	names := s.listNames(domain.ProductFilter{})
	s.Require().Len(names, 3)
	s.Equal("laptop", names[0], "featured products lead the default order")
}

func (s *StorefrontSuite) TestListProducts_RatingAndPopularity() {
	phone, cover, laptop := s.seedCatalog()

	_, _, err := s.ProductService.AddReview(s.Ctx, s.customer, cover.ID, service.ReviewInput{Rating: 5, Comment: "Fits perfectly and feels sturdy"})
	s.Require().NoError(err)
	_, _, err = s.ProductService.AddReview(s.Ctx, s.customer, phone.ID, service.ReviewInput{Rating: 3, Comment: "Battery could be much better"})
	s.Require().NoError(err)

	minRating := decimal.NewFromInt(4)
	s.Equal([]string{"cover"}, s.listNames(domain.ProductFilter{MinRating: &minRating}))
	s.Equal([]string{"cover", "phone", "laptop"}, s.listNames(domain.ProductFilter{Sort: domain.SortRating}))

	s.placeOrder(s.customer, service.OrderLine{ProductID: laptop.ID, Quantity: 2})
	s.placeOrder(s.other, service.OrderLine{ProductID: phone.ID, Quantity: 1})

	s.Equal([]string{"laptop", "phone", "cover"}, s.listNames(domain.ProductFilter{Sort: domain.SortPopular}))
}

func (s *StorefrontSuite) TestSalesCount_FollowsReservations() {
	phone := s.seedProduct("phone", 100, 10)

	order := s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 3})

	product, err := s.ProductRepo.GetByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(int32(3), product.SalesCount)

	_, err = s.OrderService.CancelOrder(s.Ctx, s.customer, order.ID, "changed my mind")
	s.Require().NoError(err)

	product, err = s.ProductRepo.GetByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(int32(0), product.SalesCount)
}

func (s *StorefrontSuite) TestAddReview_UpsertsAndRecomputesRating() {
	phone := s.seedProduct("phone", 100, 10)

	cached, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(int32(0), cached.Rating.Count)

	review, rating, err := s.ProductService.AddReview(s.Ctx, s.customer, phone.ID, service.ReviewInput{Rating: 4, Comment: "Good phone for the price"})
	s.Require().NoError(err)
	s.NotZero(review.ID)
	s.False(review.Verified)
	s.Equal(int32(1), rating.Count)
	s.True(rating.Average.Equal(decimal.NewFromInt(4)))

	_, rating, err = s.ProductService.AddReview(s.Ctx, s.other, phone.ID, service.ReviewInput{Rating: 2, Comment: "Screen scratched within a week"})
	s.Require().NoError(err)
	s.Equal(int32(2), rating.Count)
	s.True(rating.Average.Equal(decimal.NewFromInt(3)), rating.Average.String())

	again, rating, err := s.ProductService.AddReview(s.Ctx, s.customer, phone.ID, service.ReviewInput{Rating: 5, Comment: "Update: software fixed everything"})
	s.Require().NoError(err)
	s.Equal(review.ID, again.ID)
	s.Equal(int32(2), rating.Count)
	s.True(rating.Average.Equal(decimal.RequireFromString("3.5")), rating.Average.String())

	fresh, err := s.ProductService.FindByID(s.Ctx, phone.ID)
	s.Require().NoError(err)
	s.Equal(int32(2), fresh.Rating.Count)

	page, err := s.ProductService.ListReviews(s.Ctx, phone.ID, 1, 10)
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Items, 2)
	s.Equal("User customer@example.com", page.Items[0].UserName)
	s.Equal("Update: software fixed everything", page.Items[0].Comment)
}

func (s *StorefrontSuite) TestAddReview_VerifiedAfterDelivery() {
	phone := s.seedProduct("phone", 100, 10)
	s.deliver(s.placeOrder(s.customer, service.OrderLine{ProductID: phone.ID, Quantity: 1}))

	review, _, err := s.ProductService.AddReview(s.Ctx, s.customer, phone.ID, service.ReviewInput{Rating: 5, Comment: "Arrived quickly, works great"})
	s.Require().NoError(err)
	s.True(review.Verified)

	review, _, err = s.ProductService.AddReview(s.Ctx, s.other, phone.ID, service.ReviewInput{Rating: 1, Comment: "Never bought it but dislike it"})
	s.Require().NoError(err)
	s.False(review.Verified)
}

func (s *StorefrontSuite) TestAddReview_InactiveProduct() {
	phone := s.seedProduct("phone", 100, 10)
	s.Require().NoError(s.ProductService.Delete(s.Ctx, s.admin, domain.RoleAdmin, phone.ID))

	_, _, err := s.ProductService.AddReview(s.Ctx, s.customer, phone.ID, service.ReviewInput{Rating: 4, Comment: "Too late to review this"})
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	_, err = s.ProductService.ListReviews(s.Ctx, phone.ID, 1, 10)
	s.Require().ErrorIs(err, repository.ErrProductNotFound)

	s.Equal(0, s.countRows(`SELECT count(*) FROM product_reviews`))
}

func (s *StorefrontSuite) TestCatalogMeta_CachedAndInvalidated() {
	_, cover, _ := s.seedCatalog()

	categories, err := s.ProductService.Categories(s.Ctx)
	s.Require().NoError(err)
	s.Equal([]string{"accessories", "electronics"}, categories)

	brands, err := s.ProductService.Brands(s.Ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Acme", "Shield", "Zen"}, brands)
	s.Equal(int64(1), s.RedisClient.Exists(s.Ctx, "products:meta:brands").Val())

	_, err = s.ProductService.Create(s.Ctx, &domain.Product{
		SellerID: s.seller, Name: "kettle", Category: "kitchen", Brand: "Boil",
		Price: decimal.NewFromInt(900), Stock: 1,
	})
	s.Require().NoError(err)

	categories, err = s.ProductService.Categories(s.Ctx)
	s.Require().NoError(err)
	s.Equal([]string{"accessories", "electronics", "kitchen"}, categories)

	s.Require().NoError(s.ProductService.Delete(s.Ctx, s.seller, domain.RoleSeller, cover.ID))

	brands, err = s.ProductService.Brands(s.Ctx)
	s.Require().NoError(err)
	s.Equal([]string{"Acme", "Boil", "Zen"}, brands)
}
