// Package rest provides HTTP handlers for the catalog, the ledger and the reports.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/abgdnv/stockroom/internal/analytics"
	perrors "github.com/abgdnv/stockroom/internal/errors"
	"github.com/abgdnv/stockroom/internal/service"
	"github.com/abgdnv/stockroom/pkg/config"
	"github.com/abgdnv/stockroom/pkg/validation"
	"github.com/abgdnv/stockroom/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const day = 24 * time.Hour

type Handler struct {
	service  service.InventoryService
	reports  config.ReportsConfig
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler. reports supplies the defaults for omitted query parameters.
func NewHandler(service service.InventoryService, reports config.ReportsConfig, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		reports:  reports,
		validate: validation.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes of the inventory API.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.FindAll)
			r.Post("/", h.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.FindByID)
				r.Delete("/", h.DeleteByID)
				r.Put("/stock", h.UpdateStock)
				r.Get("/movements", h.ProductMovements)
				r.Get("/profit", h.ProductProfit)
			})
		})

		r.Route("/movements", func(r chi.Router) {
			r.Get("/", h.RecentMovements)
			r.Post("/", h.RecordMovement)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", h.LowStock)
			r.Get("/profit", h.Profit)
			r.Get("/profit/daily", h.DailyProfit)
			r.Get("/profit/monthly", h.MonthlyProfit)
			r.Get("/most-profitable", h.MostProfitable)
			r.Get("/inactive", h.Inactive)
			r.Get("/popular", h.Popular)
			r.Get("/stock-flow", h.StockFlow)
			r.Get("/summary", h.Summary)
		})

		r.Post("/backups", h.Backup)
	})

	r.Get("/healthz", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
}

// FindByID retrieves a product by its ID.
func (h *Handler) FindByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to retrieve product with ID "+id)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// FindAll lists products, optionally filtered by category, gender, color and size.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	q := r.URL.Query()
	filter := service.ProductFilterDto{
		Category: q.Get("category"),
		Gender:   q.Get("gender"),
		Color:    q.Get("color"),
		Size:     q.Get("size"),
	}
	mLogger.DebugContext(r.Context(), "Received request to find products", "filter", filter)
	list, err := h.service.FindAll(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to fetch products")
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	var dto service.ProductCreateDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}
	created, err := h.service.Create(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to create product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

// UpdateStock overrides the stock of a product without recording a movement.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var dto service.StockUpdateDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}
	updated, err := h.service.UpdateStock(r.Context(), id, *dto.Stock)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to update stock for product with ID "+id)
		return
	}
	mLogger.InfoContext(r.Context(), "Stock updated successfully for product", "ID", updated.ID, "NewStock", updated.Stock)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// DeleteByID deletes a product by its ID.
func (h *Handler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	if err := h.service.DeleteByID(r.Context(), id); err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to delete product with ID "+id)
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// ProductMovements lists the movements of one product, including deleted products.
func (h *Handler) ProductMovements(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	list, err := h.service.MovementsFor(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to fetch movements for product with ID "+id)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// ProductProfit returns the lifetime sales profit of a product.
func (h *Handler) ProductProfit(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	profit, err := h.service.ProductProfit(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to calculate profit for product with ID "+id)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, profit)
}

// RecordMovement appends a stock movement to the ledger.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	var dto service.MovementCreateDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}
	m, err := h.service.RecordMovement(r.Context(), dto)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to record movement")
		return
	}
	mLogger.InfoContext(r.Context(), "Movement recorded successfully", "ID", m.ID, "ProductID", m.ProductID, "Kind", m.Kind)
	web.RespondJSON(w, mLogger, http.StatusCreated, m)
}

// RecentMovements lists the newest movements. limit=0 lists all of them.
func (h *Handler) RecentMovements(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	limit, ok := web.OptionalGte(r, w, mLogger, "limit", 0, h.reports.Limit)
	if !ok {
		return
	}
	list, err := h.service.RecentMovements(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to fetch movements")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	threshold, ok := web.OptionalGte(r, w, mLogger, "threshold", 0, h.reports.LowStockThreshold)
	if !ok {
		return
	}
	list, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build low stock report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Profit reports sales between the optional from and to query parameters.
func (h *Handler) Profit(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	rng, ok := parseRange(w, r, mLogger)
	if !ok {
		return
	}
	report, err := h.service.ProfitReport(r.Context(), rng)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build profit report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, report)
}

func (h *Handler) DailyProfit(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	report, err := h.service.DailyProfit(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build daily profit report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, report)
}

func (h *Handler) MonthlyProfit(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	report, err := h.service.MonthlyProfit(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build monthly profit report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, report)
}

func (h *Handler) MostProfitable(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	limit, ok := web.OptionalGt(r, w, mLogger, "limit", 0, h.reports.Limit)
	if !ok {
		return
	}
	list, err := h.service.MostProfitable(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to rank products by profit")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// Inactive lists products without movements in the last days query parameter.
func (h *Handler) Inactive(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	days, ok := web.OptionalGt(r, w, mLogger, "days", 0, h.defaultDays())
	if !ok {
		return
	}
	list, err := h.service.Inactive(r.Context(), time.Duration(days)*day)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build inactive products report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	days, ok := web.OptionalGt(r, w, mLogger, "days", 0, h.defaultDays())
	if !ok {
		return
	}
	limit, ok := web.OptionalGt(r, w, mLogger, "limit", 0, h.reports.Limit)
	if !ok {
		return
	}
	list, err := h.service.Popular(r.Context(), time.Duration(days)*day, limit)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build popular products report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

func (h *Handler) StockFlow(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	rng, ok := parseRange(w, r, mLogger)
	if !ok {
		return
	}
	list, err := h.service.StockFlow(r.Context(), rng)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build stock flow report")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to build summary")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, summary)
}

// Backup triggers a manual backup.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	mLogger := h.requestLogger(r)
	backup, err := h.service.Backup(r.Context())
	if err != nil {
		h.respondServiceError(w, r, mLogger, err, "Failed to create backup")
		return
	}
	mLogger.InfoContext(r.Context(), "Backup created", "files", backup.Files)
	web.RespondJSON(w, mLogger, http.StatusCreated, backup)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decodeAndValidate decodes the JSON body into dst and validates it.
// On failure it writes a 400 response and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondServiceError maps service errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, perrors.ErrValidation):
		mLogger.WarnContext(r.Context(), "Request rejected", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
	case errors.Is(err, perrors.ErrProductNotFound):
		mLogger.WarnContext(r.Context(), "Product not found", "error", err)
		web.RespondError(w, mLogger, http.StatusNotFound, err.Error())
	case errors.Is(err, perrors.ErrDuplicateID), errors.Is(err, perrors.ErrInsufficientStock):
		mLogger.WarnContext(r.Context(), "Request conflicts with current state", "error", err)
		web.RespondError(w, mLogger, http.StatusConflict, err.Error())
	default:
		mLogger.ErrorContext(r.Context(), fallback, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fallback)
	}
}

func (h *Handler) defaultDays() int {
	return max(int(h.reports.Window/day), 1)
}

func parseRange(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (analytics.Range, bool) {
	from, ok := web.ParseOptionalTime(r, w, mLogger, "from")
	if !ok {
		return analytics.Range{}, false
	}
	to, ok := web.ParseOptionalTime(r, w, mLogger, "to")
	if !ok {
		return analytics.Range{}, false
	}
	return analytics.Range{From: from, To: to}, true
}

// requestLogger tags the handler logger with the request line.
// The request ID is added by the logger's context handler.
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("method", r.Method, "path", r.URL.Path)
}
