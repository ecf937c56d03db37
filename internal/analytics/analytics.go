// Package analytics derives profit and activity reports from store snapshots.
// Every report is a pure function of one snapshot and the clock.
package analytics

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/abgdnv/stockroom/internal/store"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Source provides consistent snapshots of the catalog and ledger.
type Source interface {
	Snapshot(ctx context.Context) store.Snapshot
}

// Analytics computes reports over a Source.
type Analytics struct {
	source Source
	now    func() time.Time
}

// Option configures Analytics.
type Option func(*Analytics)

// WithClock replaces time.Now. The clock's location defines calendar days.
func WithClock(now func() time.Time) Option {
	return func(a *Analytics) {
		a.now = now
	}
}

func New(source Source, opts ...Option) *Analytics {
	a := &Analytics{source: source, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProfitReport prices every outbound movement in r whose product still exists.
func (a *Analytics) ProfitReport(ctx context.Context, r Range) ProfitReport {
	return profitReport(a.source.Snapshot(ctx), r)
}

// DailyProfit reports the sales of the current calendar day.
func (a *Analytics) DailyProfit(ctx context.Context) ProfitReport {
	now := a.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return a.ProfitReport(ctx, Range{From: &start, To: &end})
}

// MonthlyProfit reports the sales of the trailing DefaultWindow.
func (a *Analytics) MonthlyProfit(ctx context.Context) ProfitReport {
	from := a.now().Add(-DefaultWindow)
	return a.ProfitReport(ctx, Range{From: &from})
}

// ProductProfit is the profit over every sale of one product, or zero when the
// product is unknown.
func (a *Analytics) ProductProfit(ctx context.Context, id string) decimal.Decimal {
	snapshot := a.source.Snapshot(ctx)
	p, ok := snapshot.ProductIndex()[id]
	if !ok {
		return decimal.Zero
	}
	units := 0
	for _, m := range snapshot.Movements {
		if m.ProductID == id && m.Kind == store.Outbound {
			units += m.Quantity
		}
	}
	return times(p.UnitProfit(), units)
}

// MostProfitableProducts ranks the catalog by profit over the trailing
// DefaultWindow, highest first. Ties are ordered by product ID.
func (a *Analytics) MostProfitableProducts(ctx context.Context, limit int) []Profitability {
	snapshot := a.source.Snapshot(ctx)
	from := a.now().Add(-DefaultWindow)

	sold := make(map[string]int, len(snapshot.Products))
	for _, m := range snapshot.Movements {
		if m.Kind == store.Outbound && !m.Date.Before(from) {
			sold[m.ProductID] += m.Quantity
		}
	}

	result := make([]Profitability, 0, len(snapshot.Products))
	for _, p := range snapshot.Products {
		units := sold[p.ID]
		unitProfit := p.UnitProfit()
		result = append(result, Profitability{
			ProductID:     p.ID,
			ProductName:   p.Name,
			PurchasePrice: p.PurchasePrice,
			SalePrice:     p.Price,
			UnitProfit:    unitProfit,
			MarginPercent: percent(unitProfit, p.Price),
			UnitsSold:     units,
			Revenue:       times(p.Price, units),
			Profit:        times(unitProfit, units),
		})
	}
	slices.SortFunc(result, func(x, y Profitability) int {
		return cmp.Or(y.Profit.Cmp(x.Profit), cmp.Compare(x.ProductID, y.ProductID))
	})
	return truncate(result, limit)
}

// LowStockReport lists products with stock at or below threshold.
func (a *Analytics) LowStockReport(ctx context.Context, threshold int) []store.Product {
	snapshot := a.source.Snapshot(ctx)
	result := make([]store.Product, 0)
	for _, p := range snapshot.Products {
		if p.StockQuantity <= threshold {
			result = append(result, p)
		}
	}
	return result
}

// InactiveProducts lists products that never moved or whose last recorded
// movement is older than window. A window <= 0 means DefaultWindow.
func (a *Analytics) InactiveProducts(ctx context.Context, window time.Duration) []InactiveProduct {
	if window <= 0 {
		window = DefaultWindow
	}
	snapshot := a.source.Snapshot(ctx)
	now := a.now()

	// last recorded, not latest dated
	last := make(map[string]time.Time, len(snapshot.Products))
	for _, m := range snapshot.Movements {
		last[m.ProductID] = m.Date
	}

	result := make([]InactiveProduct, 0)
	for _, p := range snapshot.Products {
		date, moved := last[p.ID]
		if moved && now.Sub(date) <= window {
			continue
		}
		item := InactiveProduct{ProductID: p.ID, ProductName: p.Name, StockQuantity: p.StockQuantity}
		if moved {
			item.LastMovement = &date
		}
		result = append(result, item)
	}
	return result
}

// PopularProducts ranks existing products by units sold within window, highest
// first, ties by product ID. Products without sales are left out.
func (a *Analytics) PopularProducts(ctx context.Context, window time.Duration, limit int) []PopularProduct {
	if window <= 0 {
		window = DefaultWindow
	}
	snapshot := a.source.Snapshot(ctx)
	products := snapshot.ProductIndex()
	from := a.now().Add(-window)

	sold := make(map[string]int)
	for _, m := range snapshot.Movements {
		if m.Kind != store.Outbound || m.Date.Before(from) {
			continue
		}
		if _, ok := products[m.ProductID]; ok {
			sold[m.ProductID] += m.Quantity
		}
	}

	result := make([]PopularProduct, 0, len(sold))
	for id, units := range sold {
		p := products[id]
		result = append(result, PopularProduct{
			ProductID:     id,
			ProductName:   p.Name,
			UnitsSold:     units,
			StockQuantity: p.StockQuantity,
		})
	}
	slices.SortFunc(result, func(x, y PopularProduct) int {
		return cmp.Or(cmp.Compare(y.UnitsSold, x.UnitsSold), cmp.Compare(x.ProductID, y.ProductID))
	})
	return truncate(result, limit)
}

// StockFlow totals inbound and outbound units per existing product in r,
// sorted by product ID.
func (a *Analytics) StockFlow(ctx context.Context, r Range) []FlowLine {
	snapshot := a.source.Snapshot(ctx)
	products := snapshot.ProductIndex()

	lines := make(map[string]*FlowLine)
	for _, m := range snapshot.Movements {
		p, ok := products[m.ProductID]
		if !ok || !r.Contains(m.Date) {
			continue
		}
		line, ok := lines[p.ID]
		if !ok {
			line = &FlowLine{ProductID: p.ID, ProductName: p.Name}
			lines[p.ID] = line
		}
		if m.Kind == store.Outbound {
			line.Outbound += m.Quantity
		} else {
			line.Inbound += m.Quantity
		}
	}

	result := make([]FlowLine, 0, len(lines))
	for _, line := range lines {
		result = append(result, *line)
	}
	slices.SortFunc(result, func(x, y FlowLine) int { return cmp.Compare(x.ProductID, y.ProductID) })
	return result
}

// Summary values the stock on hand.
func (a *Analytics) Summary(ctx context.Context) Summary {
	snapshot := a.source.Snapshot(ctx)
	s := Summary{
		InventoryValue:   inventoryValue(snapshot.Products),
		PotentialRevenue: decimal.Zero,
		ProductCount:     len(snapshot.Products),
	}
	for _, p := range snapshot.Products {
		s.PotentialRevenue = s.PotentialRevenue.Add(times(p.Price, p.StockQuantity))
		s.UnitsOnHand += p.StockQuantity
	}
	s.PotentialProfit = s.PotentialRevenue.Sub(s.InventoryValue)
	return s
}

func profitReport(snapshot store.Snapshot, r Range) ProfitReport {
	products := snapshot.ProductIndex()
	report := ProfitReport{
		Range:          r,
		TotalRevenue:   decimal.Zero,
		TotalCost:      decimal.Zero,
		TotalProfit:    decimal.Zero,
		InventoryValue: inventoryValue(snapshot.Products),
		Sales:          make([]SaleLine, 0),
	}

	for _, m := range snapshot.Movements {
		if m.Kind != store.Outbound || !r.Contains(m.Date) {
			continue
		}
		p, ok := products[m.ProductID]
		if !ok {
			continue
		}
		revenue := times(p.Price, m.Quantity)
		cost := times(p.PurchasePrice, m.Quantity)
		profit := revenue.Sub(cost)
		line := SaleLine{
			MovementID:    m.ID,
			Date:          m.Date,
			ProductID:     p.ID,
			ProductName:   p.Name,
			Quantity:      m.Quantity,
			Revenue:       revenue,
			Cost:          cost,
			Profit:        profit,
			Margin:        percent(profit, revenue),
			Description:   m.Description,
			PurchasePrice: p.PurchasePrice,
			SalePrice:     p.Price,
		}
		report.TotalRevenue = report.TotalRevenue.Add(revenue)
		report.TotalCost = report.TotalCost.Add(cost)
		report.TotalProfit = report.TotalProfit.Add(profit)
		report.Sales = append(report.Sales, line)
	}
	report.TotalMargin = percent(report.TotalProfit, report.TotalRevenue)
	return report
}

// inventoryValue is the stock on hand valued at purchase price.
func inventoryValue(products []store.Product) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		total = total.Add(times(p.PurchasePrice, p.StockQuantity))
	}
	return total
}

func times(price decimal.Decimal, units int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(units)))
}

// percent returns part as a percentage of whole rounded to two places, or zero
// when whole is not positive.
func percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

func truncate[T any](items []T, limit int) []T {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
