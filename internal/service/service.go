// Package service provides the inventory use cases on top of the store and analytics.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/abgdnv/stockroom/internal/analytics"
	perrors "github.com/abgdnv/stockroom/internal/errors"
	"github.com/abgdnv/stockroom/internal/store"
)

// InventoryService defines the operations exposed to transports.
type InventoryService interface {
	// FindByID retrieves a single product.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FindByID(ctx context.Context, id string) (*ProductDto, error)

	// FindAll returns the products matching filter, sorted by ID.
	// Returns an empty slice if no products match.
	FindAll(ctx context.Context, filter ProductFilterDto) ([]ProductDto, error)

	// Create adds a new product to the catalog.
	// Returns ErrDuplicateID if the ID is taken.
	Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error)

	// UpdateStock overrides the stock quantity without a ledger entry.
	// Returns ErrProductNotFound if no product exists with the given ID.
	UpdateStock(ctx context.Context, id string, stock int) (*ProductDto, error)

	// DeleteByID removes a product. Its movements are kept.
	// Returns ErrProductNotFound if no product exists with the given ID.
	DeleteByID(ctx context.Context, id string) error

	// RecordMovement appends a movement and adjusts stock.
	// Returns ErrProductNotFound or ErrInsufficientStock.
	RecordMovement(ctx context.Context, movement MovementCreateDto) (*MovementDto, error)

	// MovementsFor returns the ledger entries of one product in recording order.
	MovementsFor(ctx context.Context, id string) ([]MovementDto, error)

	// RecentMovements returns up to limit movements, newest first.
	RecentMovements(ctx context.Context, limit int) ([]MovementDto, error)

	// LowStock returns products with stock at or below threshold.
	LowStock(ctx context.Context, threshold int) ([]ProductDto, error)

	ProfitReport(ctx context.Context, r analytics.Range) (*analytics.ProfitReport, error)
	DailyProfit(ctx context.Context) (*analytics.ProfitReport, error)
	MonthlyProfit(ctx context.Context) (*analytics.ProfitReport, error)

	// ProductProfit returns the lifetime sales profit of one product, 0 if unknown.
	ProductProfit(ctx context.Context, id string) (*ProductProfitDto, error)

	MostProfitable(ctx context.Context, limit int) ([]analytics.Profitability, error)
	Inactive(ctx context.Context, window time.Duration) ([]analytics.InactiveProduct, error)
	Popular(ctx context.Context, window time.Duration, limit int) ([]analytics.PopularProduct, error)
	StockFlow(ctx context.Context, r analytics.Range) ([]analytics.FlowLine, error)
	Summary(ctx context.Context) (*analytics.Summary, error)

	// Backup copies the persisted state into a new timestamped backup.
	Backup(ctx context.Context) (*BackupDto, error)
}

// Inventory is the subset of *store.Store used by the service.
type Inventory interface {
	AddProduct(ctx context.Context, p store.Product) (*store.Product, error)
	FindByID(ctx context.Context, id string) (*store.Product, error)
	Search(ctx context.Context, filter store.ProductFilter) []store.Product
	UpdateStock(ctx context.Context, id string, quantity int) (*store.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	RecordMovement(ctx context.Context, in store.MovementInput) (*store.Movement, error)
	MovementsFor(ctx context.Context, productID string) []store.Movement
	RecentMovements(ctx context.Context, limit int) []store.Movement
	ListLowStock(ctx context.Context, threshold int) []store.Product
	Backup(ctx context.Context) ([]string, bool)
}

// Service implements InventoryService.
type Service struct {
	inventory Inventory
	analytics *analytics.Analytics
}

// NewService creates a new Service over the given inventory and analytics.
func NewService(inventory Inventory, reports *analytics.Analytics) *Service {
	return &Service{
		inventory: inventory,
		analytics: reports,
	}
}

// FindByID retrieves a product by its ID.
func (s *Service) FindByID(ctx context.Context, id string) (*ProductDto, error) {
	p, err := s.inventory.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch product by ID %s: %w", id, err)
	}
	return toProductDto(p), nil
}

// FindAll retrieves the products matching filter.
func (s *Service) FindAll(ctx context.Context, filter ProductFilterDto) ([]ProductDto, error) {
	products := s.inventory.Search(ctx, store.ProductFilter{
		Category: filter.Category,
		Gender:   filter.Gender,
		Color:    filter.Color,
		Size:     filter.Size,
	})
	return toProductDtos(products), nil
}

// Create adds a product and returns it.
func (s *Service) Create(ctx context.Context, product ProductCreateDto) (*ProductDto, error) {
	created, err := s.inventory.AddProduct(ctx, store.Product{
		ID:            product.ID,
		Name:          product.Name,
		Category:      product.Category,
		Gender:        product.Gender,
		Sizes:         product.Sizes,
		Color:         product.Color,
		PurchasePrice: product.PurchasePrice,
		Price:         product.Price,
		StockQuantity: product.Stock,
		ImagePath:     product.ImagePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return toProductDto(created), nil
}

// UpdateStock overrides the stock of a product.
func (s *Service) UpdateStock(ctx context.Context, id string, stock int) (*ProductDto, error) {
	p, err := s.inventory.UpdateStock(ctx, id, stock)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock for product with ID %s: %w", id, err)
	}
	return toProductDto(p), nil
}

// DeleteByID deletes a product by its ID.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	if err := s.inventory.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("failed to delete product with ID %s: %w", id, err)
	}
	return nil
}

// RecordMovement appends a stock movement.
func (s *Service) RecordMovement(ctx context.Context, movement MovementCreateDto) (*MovementDto, error) {
	in := store.MovementInput{
		ProductID:   movement.ProductID,
		Kind:        store.MovementKind(movement.Kind),
		Quantity:    movement.Quantity,
		Description: movement.Description,
	}
	if movement.Date != nil {
		in.Date = *movement.Date
	}
	m, err := s.inventory.RecordMovement(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to record %s movement for product %s: %w", movement.Kind, movement.ProductID, err)
	}
	return toMovementDto(*m), nil
}

func (s *Service) MovementsFor(ctx context.Context, id string) ([]MovementDto, error) {
	return toMovementDtos(s.inventory.MovementsFor(ctx, id)), nil
}

func (s *Service) RecentMovements(ctx context.Context, limit int) ([]MovementDto, error) {
	return toMovementDtos(s.inventory.RecentMovements(ctx, limit)), nil
}

func (s *Service) LowStock(ctx context.Context, threshold int) ([]ProductDto, error) {
	return toProductDtos(s.inventory.ListLowStock(ctx, threshold)), nil
}

func (s *Service) ProfitReport(ctx context.Context, r analytics.Range) (*analytics.ProfitReport, error) {
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return nil, fmt.Errorf("%w: range starts after it ends", perrors.ErrValidation)
	}
	report := s.analytics.ProfitReport(ctx, r)
	return &report, nil
}

func (s *Service) DailyProfit(ctx context.Context) (*analytics.ProfitReport, error) {
	report := s.analytics.DailyProfit(ctx)
	return &report, nil
}

func (s *Service) MonthlyProfit(ctx context.Context) (*analytics.ProfitReport, error) {
	report := s.analytics.MonthlyProfit(ctx)
	return &report, nil
}

func (s *Service) ProductProfit(ctx context.Context, id string) (*ProductProfitDto, error) {
	return &ProductProfitDto{ProductID: id, Profit: s.analytics.ProductProfit(ctx, id)}, nil
}

func (s *Service) MostProfitable(ctx context.Context, limit int) ([]analytics.Profitability, error) {
	return s.analytics.MostProfitableProducts(ctx, limit), nil
}

func (s *Service) Inactive(ctx context.Context, window time.Duration) ([]analytics.InactiveProduct, error) {
	return s.analytics.InactiveProducts(ctx, window), nil
}

func (s *Service) Popular(ctx context.Context, window time.Duration, limit int) ([]analytics.PopularProduct, error) {
	return s.analytics.PopularProducts(ctx, window, limit), nil
}

func (s *Service) StockFlow(ctx context.Context, r analytics.Range) ([]analytics.FlowLine, error) {
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return nil, fmt.Errorf("%w: range starts after it ends", perrors.ErrValidation)
	}
	return s.analytics.StockFlow(ctx, r), nil
}

func (s *Service) Summary(ctx context.Context) (*analytics.Summary, error) {
	summary := s.analytics.Summary(ctx)
	return &summary, nil
}

// Backup triggers a backup. Failures are logged by the store and reported as ErrBackupFailed.
func (s *Service) Backup(ctx context.Context) (*BackupDto, error) {
	files, ok := s.inventory.Backup(ctx)
	if !ok {
		return nil, perrors.ErrBackupFailed
	}
	return &BackupDto{Files: files}, nil
}
