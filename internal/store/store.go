// Package store owns the product catalog and the stock movement ledger.
// It is the single point of mutation: every change is persisted as a whole
// snapshot before it becomes visible in memory.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	perrors "github.com/abgdnv/stockroom/internal/errors"
	"github.com/abgdnv/stockroom/internal/metrics"
	"github.com/abgdnv/stockroom/pkg/validation"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Persister reads and writes whole snapshots of the catalog and ledger.
type Persister interface {
	// Load returns the last saved snapshot, or an empty one when nothing was saved yet.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the persisted state with snapshot. It either fully succeeds or
	// leaves the previously saved snapshot readable.
	Save(ctx context.Context, snapshot Snapshot) error

	// Backup copies the persisted artifacts into a new timestamped location and
	// returns the created paths. Earlier backups are never overwritten.
	Backup(ctx context.Context, at time.Time) ([]string, error)
}

// Restorer is implemented by persisters that can replace the saved state with
// one of their own backups.
type Restorer interface {
	Restore(ctx context.Context, path string) error
}

// Store is the catalog and ledger. It is safe for use by concurrent HTTP handlers.
type Store struct {
	mu        sync.RWMutex
	persister Persister
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
	fallback  bool

	revision  int64
	products  map[string]Product
	movements []Movement
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of movement timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLoadFallback controls what New does when the snapshots cannot be loaded:
// start empty (true, the default) or fail.
func WithLoadFallback(enabled bool) Option {
	return func(s *Store) {
		s.fallback = enabled
	}
}

// New loads the persisted snapshot and returns a ready Store.
func New(ctx context.Context, persister Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persister: persister,
		validate:  validation.New(),
		logger:    slog.Default(),
		now:       time.Now,
		fallback:  true,
		products:  make(map[string]Product),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")

	snapshot, err := persister.Load(ctx)
	if err != nil {
		if !s.fallback {
			return nil, fmt.Errorf("%w: load snapshot: %w", perrors.ErrPersistence, err)
		}
		s.logger.ErrorContext(ctx, "Failed to load snapshot, starting with an empty catalog", "error", err)
		snapshot = Snapshot{}
	}

	s.replace(snapshot)
	s.logger.InfoContext(ctx, "Store loaded",
		"revision", s.revision,
		"products", len(s.products),
		"movements", len(s.movements))
	return s, nil
}

// AddProduct inserts a new product.
// Returns ErrValidation for missing or negative fields and ErrDuplicateID if the ID is taken.
func (s *Store) AddProduct(ctx context.Context, p Product) (*Product, error) {
	p = p.clone()
	p.ID = strings.TrimSpace(p.ID)
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", perrors.ErrValidation, describe(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return nil, fmt.Errorf("%w: %s", perrors.ErrDuplicateID, p.ID)
	}
	products := maps.Clone(s.products)
	products[p.ID] = p
	if err := s.commit(ctx, products, s.movements); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Product added", "id", p.ID, "name", p.Name, "stock", p.StockQuantity)
	created := p.clone()
	return &created, nil
}

// FindByID returns a copy of the product.
// Returns ErrProductNotFound if no product exists with the given ID.
func (s *Store) FindByID(_ context.Context, id string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", perrors.ErrProductNotFound, id)
	}
	found := p.clone()
	return &found, nil
}

// StockLevel returns the current quantity of a product.
func (s *Store) StockLevel(ctx context.Context, id string) (int, error) {
	p, err := s.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.StockQuantity, nil
}

// FindAll returns every product sorted by ID.
func (s *Store) FindAll(ctx context.Context) []Product {
	return s.Search(ctx, ProductFilter{})
}

// Search returns the products matching filter, sorted by ID.
func (s *Store) Search(_ context.Context, filter ProductFilter) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(filter.Match)
}

// ListLowStock returns the products whose quantity is at or below threshold, sorted by ID.
func (s *Store) ListLowStock(_ context.Context, threshold int) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(func(p Product) bool { return p.StockQuantity <= threshold })
}

// UpdateStock sets the quantity of a product directly, bypassing the ledger.
// It exists for administrative corrections.
func (s *Store) UpdateStock(ctx context.Context, id string, quantity int) (*Product, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: stock quantity must not be negative, got %d", perrors.ErrValidation, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", perrors.ErrProductNotFound, id)
	}
	previous := p.StockQuantity
	p.StockQuantity = quantity
	products := maps.Clone(s.products)
	products[id] = p
	if err := s.commit(ctx, products, s.movements); err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "Stock overridden", "id", id, "from", previous, "to", quantity)
	updated := p.clone()
	return &updated, nil
}

// DeleteProduct removes a product from the catalog.
// Its movements stay in the ledger for historical reporting.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("%w: %s", perrors.ErrProductNotFound, id)
	}
	products := maps.Clone(s.products)
	delete(products, id)
	if err := s.commit(ctx, products, s.movements); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Product deleted", "id", id)
	return nil
}

// RecordMovement validates and appends a movement and adjusts the product's stock.
// Returns ErrProductNotFound, ErrValidation, ErrInsufficientStock or ErrPersistence;
// on any error neither the catalog nor the ledger changes.
func (s *Store) RecordMovement(ctx context.Context, in MovementInput) (*Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[in.ProductID]
	if !ok {
		metrics.MovementsRejected.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %s", perrors.ErrProductNotFound, in.ProductID)
	}
	if in.Quantity <= 0 {
		metrics.MovementsRejected.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", perrors.ErrValidation, in.Quantity)
	}
	if !in.Kind.Valid() {
		metrics.MovementsRejected.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: unknown movement kind %q", perrors.ErrValidation, in.Kind)
	}
	if in.Kind == Outbound && p.StockQuantity < in.Quantity {
		metrics.MovementsRejected.WithLabelValues("insufficient_stock").Inc()
		return nil, fmt.Errorf("%w: product %s has %d, requested %d",
			perrors.ErrInsufficientStock, p.ID, p.StockQuantity, in.Quantity)
	}
	if in.Kind == Inbound && in.Quantity > math.MaxInt-p.StockQuantity {
		metrics.MovementsRejected.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("%w: receiving %d would overflow the stock of product %s",
			perrors.ErrValidation, in.Quantity, p.ID)
	}

	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	m := Movement{
		ID:          uuid.NewString(),
		ProductID:   p.ID,
		Kind:        in.Kind,
		Quantity:    in.Quantity,
		Date:        date.UTC(),
		Description: in.Description,
		Revision:    s.revision + 1,
	}
	p.StockQuantity += m.Delta()

	products := maps.Clone(s.products)
	products[p.ID] = p
	movements := append(slices.Clip(s.movements), m)
	if err := s.commit(ctx, products, movements); err != nil {
		metrics.MovementsRejected.WithLabelValues("persistence").Inc()
		return nil, err
	}

	metrics.MovementsRecorded.WithLabelValues(string(m.Kind)).Inc()
	metrics.UnitsMoved.WithLabelValues(string(m.Kind)).Add(float64(m.Quantity))
	s.logger.InfoContext(ctx, "Movement recorded",
		"id", m.ID,
		"product_id", m.ProductID,
		"kind", m.Kind,
		"quantity", m.Quantity,
		"stock", p.StockQuantity)
	return &m, nil
}

// MovementsFor returns the movements of one product in recording order,
// including those of products that have since been deleted.
func (s *Store) MovementsFor(_ context.Context, productID string) []Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Movement, 0)
	for _, m := range s.movements {
		if m.ProductID == productID {
			result = append(result, m)
		}
	}
	return result
}

// Movements returns the whole ledger in recording order.
func (s *Store) Movements(_ context.Context) []Movement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.movements)
}

// RecentMovements returns up to limit movements of products still in the
// catalog, newest date first. Movements with equal dates keep reverse recording
// order. A limit <= 0 returns all.
func (s *Store) RecentMovements(_ context.Context, limit int) []Movement {
	s.mu.RLock()
	result := make([]Movement, 0, len(s.movements))
	for _, m := range s.movements {
		if _, ok := s.products[m.ProductID]; ok {
			result = append(result, m)
		}
	}
	s.mu.RUnlock()

	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b Movement) int {
		return b.Date.Compare(a.Date)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Snapshot returns a copy of the current state for read-only consumers.
func (s *Store) Snapshot(_ context.Context) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Revision:  s.revision,
		Products:  s.collect(func(Product) bool { return true }),
		Movements: slices.Clone(s.movements),
	}
}

// Backup copies the persisted artifacts into a new timestamped backup.
// It is best-effort: failures are logged and reported through ok, never returned.
func (s *Store) Backup(ctx context.Context) (files []string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.persister.Backup(ctx, s.now())
	if err != nil {
		metrics.Backups.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "Backup failed", "error", err, "files", files)
		return files, false
	}
	metrics.Backups.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "Backup created", "files", files, "revision", s.revision)
	return files, true
}

// Restore replaces the persisted state with a backup and reloads it.
// The persister must implement Restorer.
func (s *Store) Restore(ctx context.Context, path string) error {
	restorer, ok := s.persister.(Restorer)
	if !ok {
		return fmt.Errorf("%w: storage cannot restore backups", perrors.ErrPersistence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := restorer.Restore(ctx, path); err != nil {
		metrics.PersistenceFailures.Inc()
		s.logger.ErrorContext(ctx, "Restore failed", "path", path, "error", err)
		return fmt.Errorf("%w: restore %s: %w", perrors.ErrPersistence, path, err)
	}
	snapshot, err := s.persister.Load(ctx)
	if err != nil {
		metrics.PersistenceFailures.Inc()
		return fmt.Errorf("%w: reload after restore: %w", perrors.ErrPersistence, err)
	}
	s.replace(snapshot)
	s.logger.WarnContext(ctx, "State restored from backup",
		"path", path,
		"revision", s.revision,
		"products", len(s.products),
		"movements", len(s.movements))
	return nil
}

// replace installs snapshot as the current state. Callers hold the write lock or own s exclusively.
func (s *Store) replace(snapshot Snapshot) {
	s.revision = snapshot.Revision
	s.products = make(map[string]Product, len(snapshot.Products))
	for _, p := range snapshot.Products {
		s.products[p.ID] = p.clone()
	}
	s.movements = slices.Clone(snapshot.Movements)
}

// commit persists the next state and only then makes it current.
// Callers hold the write lock and pass fresh copies, never s.products itself.
func (s *Store) commit(ctx context.Context, products map[string]Product, movements []Movement) error {
	next := Snapshot{
		Revision:  s.revision + 1,
		Products:  sortedProducts(products, nil),
		Movements: movements,
	}
	if err := s.persister.Save(ctx, next); err != nil {
		metrics.PersistenceFailures.Inc()
		s.logger.ErrorContext(ctx, "Failed to persist snapshot", "revision", next.Revision, "error", err)
		return fmt.Errorf("%w: save revision %d: %w", perrors.ErrPersistence, next.Revision, err)
	}
	s.revision = next.Revision
	s.products = products
	s.movements = movements
	return nil
}

// collect returns copies of the products accepted by keep, sorted by ID. Callers hold a lock.
func (s *Store) collect(keep func(Product) bool) []Product {
	return sortedProducts(s.products, keep)
}

func sortedProducts(products map[string]Product, keep func(Product) bool) []Product {
	result := make([]Product, 0, len(products))
	for _, p := range products {
		if keep == nil || keep(p) {
			result = append(result, p.clone())
		}
	}
	slices.SortFunc(result, func(a, b Product) int { return cmp.Compare(a.ID, b.ID) })
	return result
}

// describe flattens validator errors into "Field failed on rule: tag" pairs.
func describe(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		parts = append(parts, fieldErr.Field()+" failed on rule: "+fieldErr.Tag())
	}
	return strings.Join(parts, "; ")
}
