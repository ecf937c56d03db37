package store

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold is the quantity at or below which a product counts as low on stock.
const DefaultLowStockThreshold = 5

// MovementKind is the direction of a stock movement.
type MovementKind string

const (
	Inbound  MovementKind = "inbound"
	Outbound MovementKind = "outbound"
)

// Valid reports whether k is one of the two ledger kinds.
func (k MovementKind) Valid() bool {
	return k == Inbound || k == Outbound
}

// Product is a catalog entry. Prices are per unit.
type Product struct {
	ID            string          `json:"id"             validate:"required,max=64"`
	Name          string          `json:"name"           validate:"required,max=200"`
	Category      string          `json:"category"       validate:"required"`
	Gender        string          `json:"gender"         validate:"required"`
	Sizes         []string        `json:"sizes"          validate:"required,min=1,dive,required"`
	Color         string          `json:"color"          validate:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price" validate:"min=0"`
	Price         decimal.Decimal `json:"price"          validate:"min=0"`
	StockQuantity int             `json:"stock_quantity" validate:"min=0"`
	ImagePath     string          `json:"image_path,omitempty"`
}

// UnitProfit is the margin earned on one unit at current prices.
func (p Product) UnitProfit() decimal.Decimal {
	return p.Price.Sub(p.PurchasePrice)
}

// clone returns a copy that shares no slices with p.
func (p Product) clone() Product {
	p.Sizes = slices.Clone(p.Sizes)
	return p
}

// Movement is an immutable ledger record.
type Movement struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"product_id"`
	Kind        MovementKind `json:"kind"`
	Quantity    int          `json:"quantity"`
	Date        time.Time    `json:"date"`
	Description string       `json:"description"`
	// Revision is the store revision that appended the movement.
	Revision int64 `json:"revision"`
}

// Delta is the signed effect of the movement on stock.
func (m Movement) Delta() int {
	if m.Kind == Outbound {
		return -m.Quantity
	}
	return m.Quantity
}

// MovementInput carries the caller-controlled fields of a new movement.
// A zero Date means "now" according to the store clock.
type MovementInput struct {
	ProductID   string
	Kind        MovementKind
	Quantity    int
	Description string
	Date        time.Time
}

// Snapshot is the whole persisted state at one revision.
// Products are sorted by ID, movements are in recording order.
type Snapshot struct {
	Revision  int64
	Products  []Product
	Movements []Movement
}

// ProductIndex maps the snapshot's products by ID.
func (s Snapshot) ProductIndex() map[string]Product {
	index := make(map[string]Product, len(s.Products))
	for _, p := range s.Products {
		index[p.ID] = p
	}
	return index
}

// ProductFilter selects products by attribute. Empty fields match everything;
// comparisons ignore case and Size matches any of a product's sizes.
type ProductFilter struct {
	Category string
	Gender   string
	Color    string
	Size     string
}

// Match reports whether p satisfies every set field of f.
func (f ProductFilter) Match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.Gender != "" && !strings.EqualFold(f.Gender, p.Gender) {
		return false
	}
	if f.Color != "" && !strings.EqualFold(f.Color, p.Color) {
		return false
	}
	if f.Size != "" && !slices.ContainsFunc(p.Sizes, func(s string) bool { return strings.EqualFold(s, f.Size) }) {
		return false
	}
	return true
}
