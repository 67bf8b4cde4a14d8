package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64            `json:"id"`
	SellerID      int64            `json:"seller_id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	Brand         string           `json:"brand,omitempty"`
	Images        []string         `json:"images"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	Discount      int32            `json:"discount"`
	Stock         int32            `json:"stock"`
	Tags          []string         `json:"tags"`
	IsFeatured    bool             `json:"is_featured"`
	SalesCount    int32            `json:"sales_count"`
	Rating        Rating           `json:"rating"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type Rating struct {
	Average decimal.Decimal `json:"average"`
	Count   int32           `json:"count"`
}

// Review is one customer's rating of a product. A user holds at most one review per product;
// posting again replaces it.
type Review struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int32     `json:"rating"`
	Comment   string    `json:"comment"`
	Images    []string  `json:"images"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}

	return p.Images[0]
}

// Purchasable reports whether qty units can be ordered right now.
func (p *Product) Purchasable(qty int32) error {
	if !p.IsActive {
		return &UnavailableError{ProductID: p.ID}
	}

	if p.Stock < qty {
		return &StockError{
			ProductID: p.ID,
			Name:      p.Name,
			Available: p.Stock,
			Requested: qty,
		}
	}

	return nil
}

type UpdateProductInput struct {
	Name          *string          `json:"name" validate:"omitempty,min=3,max=200"`
	Description   *string          `json:"description" validate:"omitempty,max=2000"`
	Category      *string          `json:"category"`
	Brand         *string          `json:"brand"`
	Images        []string         `json:"images" validate:"omitempty,dive,url"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	Discount      *int32           `json:"discount" validate:"omitempty,gte=0,max=100"`
	Tags          []string         `json:"tags" validate:"omitempty,max=20,dive,min=1,max=50"`
	IsFeatured    *bool            `json:"is_featured"`
	IsActive      *bool            `json:"is_active"`
}

type ProductSort string

const (
	SortDefault   ProductSort = ""
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortRating    ProductSort = "rating"
	SortNewest    ProductSort = "newest"
	SortPopular   ProductSort = "popular"
)

func (s ProductSort) Valid() bool {
	switch s {
	case SortDefault, SortPriceAsc, SortPriceDesc, SortRating, SortNewest, SortPopular:
		return true
	}
	return false
}

type ProductFilter struct {
	Page      int
	Limit     int
	Category  string
	Brand     string
	Search    string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MinRating *decimal.Decimal
	InStock   bool
	Tags      []string
	Sort      ProductSort
}

type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPage[T any](items []T, page, limit, total int) Page[T] {
	if items == nil {
		items = []T{}
	}

	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}

	return Page[T]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}
}

// NormalizePage clamps page/limit and returns the matching SQL offset.
func NormalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit, (page - 1) * limit
}
