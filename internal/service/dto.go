package service

import (
	"time"

	"github.com/abgdnv/stockroom/internal/store"
	"github.com/shopspring/decimal"
)

// ProductCreateDto represents the data transfer object for creating a new product.
// Prices accept JSON numbers or decimal strings.
type ProductCreateDto struct {
	ID            string          `json:"id"             validate:"required,max=64"`
	Name          string          `json:"name"           validate:"required,max=200"`
	Category      string          `json:"category"       validate:"required"`
	Gender        string          `json:"gender"         validate:"required"`
	Sizes         []string        `json:"sizes"          validate:"required,min=1,dive,required"`
	Color         string          `json:"color"          validate:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"min=0"`
	Price         decimal.Decimal `json:"price"          validate:"min=0"`
	Stock         int             `json:"stock"          validate:"min=0"`
	ImagePath     string          `json:"image_path"`
}

// ProductDto represents the data transfer object for a product.
type ProductDto struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Gender        string          `json:"gender"`
	Sizes         []string        `json:"sizes"`
	Color         string          `json:"color"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	ImagePath     string          `json:"image_path,omitempty"`
}

// ProductFilterDto narrows FindAll. Empty fields match everything.
type ProductFilterDto struct {
	Category string
	Gender   string
	Color    string
	Size     string
}

// StockUpdateDto represents the data transfer object for overriding product stock.
type StockUpdateDto struct {
	Stock *int `json:"stock" validate:"required,min=0"`
}

// MovementCreateDto represents the data transfer object for recording a movement.
// A missing date means now.
type MovementCreateDto struct {
	ProductID   string     `json:"product_id"  validate:"required"`
	Kind        string     `json:"kind"        validate:"required,oneof=inbound outbound"`
	Quantity    int        `json:"quantity"    validate:"required,min=1,max=1000000000"`
	Description string     `json:"description" validate:"max=500"`
	Date        *time.Time `json:"date"`
}

// MovementDto represents the data transfer object for a ledger entry.
type MovementDto struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Kind        string    `json:"kind"`
	Quantity    int       `json:"quantity"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// ProductProfitDto carries the lifetime sales profit of a product.
type ProductProfitDto struct {
	ProductID string          `json:"product_id"`
	Profit    decimal.Decimal `json:"profit"`
}

// BackupDto lists the files written by a backup.
type BackupDto struct {
	Files []string `json:"files"`
}

func toProductDto(p *store.Product) *ProductDto {
	return &ProductDto{
		ID:            p.ID,
		Name:          p.Name,
		Category:      p.Category,
		Gender:        p.Gender,
		Sizes:         p.Sizes,
		Color:         p.Color,
		PurchasePrice: p.PurchasePrice,
		Price:         p.Price,
		Stock:         p.StockQuantity,
		ImagePath:     p.ImagePath,
	}
}

func toProductDtos(products []store.Product) []ProductDto {
	dtos := make([]ProductDto, len(products))
	for i, item := range products {
		dtos[i] = *toProductDto(&item)
	}
	return dtos
}

func toMovementDto(m store.Movement) *MovementDto {
	return &MovementDto{
		ID:          m.ID,
		ProductID:   m.ProductID,
		Kind:        string(m.Kind),
		Quantity:    m.Quantity,
		Date:        m.Date,
		Description: m.Description,
	}
}

func toMovementDtos(movements []store.Movement) []MovementDto {
	dtos := make([]MovementDto, len(movements))
	for i, item := range movements {
		dtos[i] = *toMovementDto(item)
	}
	return dtos
}
