package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultWindow is the trailing period used by monthly and activity reports.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultLimit caps ranked reports when the caller does not.
	DefaultLimit = 5
)

// Range is an inclusive date range. A nil bound is open.
type Range struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside r.
func (r Range) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// SaleLine is one outbound movement priced at the product's current prices.
// Margin is a percentage of revenue.
type SaleLine struct {
	MovementID    string          `json:"movement_id"`
	Date          time.Time       `json:"date"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	Revenue       decimal.Decimal `json:"revenue"`
	Cost          decimal.Decimal `json:"cost"`
	Profit        decimal.Decimal `json:"profit"`
	Margin        decimal.Decimal `json:"margin"`
	Description   string          `json:"description"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
}

// ProfitReport aggregates sales in a range. InventoryValue covers the whole
// current catalog regardless of the range.
type ProfitReport struct {
	Range          Range           `json:"range"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	TotalMargin    decimal.Decimal `json:"total_margin"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
	Sales          []SaleLine      `json:"sales"`
}

// Profitability describes one product over the trailing window.
type Profitability struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	UnitProfit    decimal.Decimal `json:"unit_profit"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
	UnitsSold     int             `json:"units_sold"`
	Revenue       decimal.Decimal `json:"revenue"`
	Profit        decimal.Decimal `json:"profit"`
}

// InactiveProduct is a product without recent movements. LastMovement is nil
// when the product never moved.
type InactiveProduct struct {
	ProductID     string     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	StockQuantity int        `json:"stock_quantity"`
	LastMovement  *time.Time `json:"last_movement,omitempty"`
}

// PopularProduct is a product ranked by units sold in the window.
type PopularProduct struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	UnitsSold     int    `json:"units_sold"`
	StockQuantity int    `json:"stock_quantity"`
}

// FlowLine totals the inbound and outbound units of one product in a range.
type FlowLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Inbound     int    `json:"inbound"`
	Outbound    int    `json:"outbound"`
}

// Summary values the current stock at purchase and sale prices.
type Summary struct {
	InventoryValue   decimal.Decimal `json:"inventory_value"`
	PotentialRevenue decimal.Decimal `json:"potential_revenue"`
	PotentialProfit  decimal.Decimal `json:"potential_profit"`
	UnitsOnHand      int             `json:"units_on_hand"`
	ProductCount     int             `json:"product_count"`
}
