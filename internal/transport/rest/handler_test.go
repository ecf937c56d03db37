package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/stockroom/internal/analytics"
	perrors "github.com/abgdnv/stockroom/internal/errors"
	"github.com/abgdnv/stockroom/internal/service"
	"github.com/abgdnv/stockroom/pkg/config"
	"github.com/abgdnv/stockroom/pkg/server"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockInventoryService is a mock implementation of the InventoryService interface.
// It records the arguments of the last call.
type mockInventoryService struct {
	product   service.ProductDto
	products  []service.ProductDto
	movement  service.MovementDto
	movements []service.MovementDto
	report    analytics.ProfitReport
	error     error

	gotFilter service.ProductFilterDto
	gotLimit  int
	gotWindow time.Duration
	gotRange  analytics.Range
}

func (m *mockInventoryService) FindByID(_ context.Context, _ string) (*service.ProductDto, error) {
	return &m.product, m.error
}

func (m *mockInventoryService) FindAll(_ context.Context, filter service.ProductFilterDto) ([]service.ProductDto, error) {
	m.gotFilter = filter
	return m.products, m.error
}

func (m *mockInventoryService) Create(_ context.Context, _ service.ProductCreateDto) (*service.ProductDto, error) {
	return &m.product, m.error
}

func (m *mockInventoryService) UpdateStock(_ context.Context, _ string, _ int) (*service.ProductDto, error) {
	return &m.product, m.error
}

func (m *mockInventoryService) DeleteByID(_ context.Context, _ string) error {
	return m.error
}

func (m *mockInventoryService) RecordMovement(_ context.Context, _ service.MovementCreateDto) (*service.MovementDto, error) {
	return &m.movement, m.error
}

func (m *mockInventoryService) MovementsFor(_ context.Context, _ string) ([]service.MovementDto, error) {
	return m.movements, m.error
}

func (m *mockInventoryService) RecentMovements(_ context.Context, limit int) ([]service.MovementDto, error) {
	m.gotLimit = limit
	return m.movements, m.error
}

func (m *mockInventoryService) LowStock(_ context.Context, threshold int) ([]service.ProductDto, error) {
	m.gotLimit = threshold
	return m.products, m.error
}

func (m *mockInventoryService) ProfitReport(_ context.Context, r analytics.Range) (*analytics.ProfitReport, error) {
	m.gotRange = r
	return &m.report, m.error
}

func (m *mockInventoryService) DailyProfit(_ context.Context) (*analytics.ProfitReport, error) {
	return &m.report, m.error
}

func (m *mockInventoryService) MonthlyProfit(_ context.Context) (*analytics.ProfitReport, error) {
	return &m.report, m.error
}

func (m *mockInventoryService) ProductProfit(_ context.Context, id string) (*service.ProductProfitDto, error) {
	return &service.ProductProfitDto{ProductID: id, Profit: decimal.NewFromInt(30)}, m.error
}

func (m *mockInventoryService) MostProfitable(_ context.Context, limit int) ([]analytics.Profitability, error) {
	m.gotLimit = limit
	return []analytics.Profitability{}, m.error
}

func (m *mockInventoryService) Inactive(_ context.Context, window time.Duration) ([]analytics.InactiveProduct, error) {
	m.gotWindow = window
	return []analytics.InactiveProduct{}, m.error
}

func (m *mockInventoryService) Popular(_ context.Context, window time.Duration, limit int) ([]analytics.PopularProduct, error) {
	m.gotWindow = window
	m.gotLimit = limit
	return []analytics.PopularProduct{}, m.error
}

func (m *mockInventoryService) StockFlow(_ context.Context, r analytics.Range) ([]analytics.FlowLine, error) {
	m.gotRange = r
	return []analytics.FlowLine{}, m.error
}

func (m *mockInventoryService) Summary(_ context.Context) (*analytics.Summary, error) {
	return &analytics.Summary{ProductCount: 1}, m.error
}

func (m *mockInventoryService) Backup(_ context.Context) (*service.BackupDto, error) {
	if m.error != nil {
		return nil, m.error
	}
	return &service.BackupDto{Files: []string{"a.json"}}, nil
}

var testReports = config.ReportsConfig{LowStockThreshold: 5, Window: 30 * day, Limit: 5}

func newTestHandler(m *mockInventoryService) *Handler {
	return NewHandler(m, testReports, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func Test_Handler_FindByID(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  mockInventoryService
		productID    string
		expectedCode int
		expectedBody string
	}{
		{
			name: "Success - product found",
			mockService: mockInventoryService{
				product: service.ProductDto{ID: "1", Name: "Tee", Category: "Shirts", Gender: "Men", Sizes: []string{"M"}, Color: "Red",
					PurchasePrice: decimal.NewFromInt(5), Price: decimal.RequireFromString("9.99"), Stock: 3},
			},
			productID:    "1",
			expectedCode: http.StatusOK,
			expectedBody: `{"id":"1","name":"Tee","category":"Shirts","gender":"Men","sizes":["M"],"color":"Red","purchase_price":"5","price":"9.99","stock":3}`,
		},
		{
			name:         "Error - product not found",
			mockService:  mockInventoryService{error: fmt.Errorf("failed to fetch product by ID 999: %w", perrors.ErrProductNotFound)},
			productID:    "999",
			expectedCode: http.StatusNotFound,
			expectedBody: `{"error":"failed to fetch product by ID 999: product not found"}`,
		},
		{
			name:         "Error - persistence failure",
			mockService:  mockInventoryService{error: perrors.ErrPersistence},
			productID:    "2",
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"error":"Failed to retrieve product with ID 2"}`,
		},
		{
			name:         "Error - blank id",
			productID:    " ",
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid ID: empty"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			h := newTestHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products/x", nil)
			req.SetPathValue("id", tc.productID)
			rr := httptest.NewRecorder()

			// when
			h.FindByID(rr, req)

			// then
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_Handler_FindAll_Filter(t *testing.T) {
	// given
	m := &mockInventoryService{products: []service.ProductDto{}}
	h := newTestHandler(m)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?category=Shirts&gender=Men&color=Red&size=M", nil)
	rr := httptest.NewRecorder()

	// when
	h.FindAll(rr, req)

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Equal(t, service.ProductFilterDto{Category: "Shirts", Gender: "Men", Color: "Red", Size: "M"}, m.gotFilter)
}

func Test_Handler_Create(t *testing.T) {
	valid := `{"id":"P1","name":"Tee","category":"Shirts","gender":"Men","sizes":["M"],"color":"Red","purchase_price":5,"price":10}`
	testCases := []struct {
		name         string
		body         string
		mockService  mockInventoryService
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - product created",
			body:         valid,
			mockService:  mockInventoryService{product: service.ProductDto{ID: "P1", Name: "Tee", Sizes: []string{"M"}}},
			expectedCode: http.StatusCreated,
			expectedBody: `{"id":"P1","name":"Tee","category":"","gender":"","sizes":["M"],"color":"","purchase_price":"0","price":"0","stock":0}`,
		},
		{
			name:         "Success - decimal string prices",
			body:         `{"id":"P1","name":"Tee","category":"Shirts","gender":"Men","sizes":["M"],"color":"Red","purchase_price":"4.50","price":"9.99"}`,
			mockService:  mockInventoryService{product: service.ProductDto{ID: "P1", Name: "Tee", Sizes: []string{"M"}}},
			expectedCode: http.StatusCreated,
			expectedBody: `{"id":"P1","name":"Tee","category":"","gender":"","sizes":["M"],"color":"","purchase_price":"0","price":"0","stock":0}`,
		},
		{
			name:         "Error - invalid json",
			body:         `{"id":`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"error":"Invalid request body"}`,
		},
		{
			name:         "Error - validation",
			body:         `{"id":"P1","name":"Tee","category":"Shirts","gender":"Men","sizes":[],"color":"Red","price":-1}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Sizes":"failed on rule: min","Price":"failed on rule: min"}}`,
		},
		{
			name:         "Error - duplicate id",
			body:         valid,
			mockService:  mockInventoryService{error: fmt.Errorf("failed to create product: %w: P1", perrors.ErrDuplicateID)},
			expectedCode: http.StatusConflict,
			expectedBody: `{"error":"failed to create product: product id already exists: P1"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			h := newTestHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			// when
			h.Create(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
		})
	}
}

func Test_Handler_UpdateStock(t *testing.T) {
	testCases := []struct {
		name         string
		body         string
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - zero is allowed",
			body:         `{"stock":0}`,
			expectedCode: http.StatusOK,
		},
		{
			name:         "Error - missing stock",
			body:         `{}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Stock":"failed on rule: required"}}`,
		},
		{
			name:         "Error - negative stock",
			body:         `{"stock":-2}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Stock":"failed on rule: min"}}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			m := &mockInventoryService{product: service.ProductDto{ID: "P1"}}
			h := newTestHandler(m)
			req := httptest.NewRequest(http.MethodPut, "/api/v1/products/P1/stock", strings.NewReader(tc.body))
			req.SetPathValue("id", "P1")
			rr := httptest.NewRecorder()

			// when
			h.UpdateStock(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
			}
		})
	}
}

func Test_Handler_DeleteByID(t *testing.T) {
	testCases := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{name: "Success - deleted", expectedCode: http.StatusNoContent},
		{name: "Error - not found", err: perrors.ErrProductNotFound, expectedCode: http.StatusNotFound},
		{name: "Error - persistence failure", err: perrors.ErrPersistence, expectedCode: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			h := newTestHandler(&mockInventoryService{error: tc.err})
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/P1", nil)
			req.SetPathValue("id", "P1")
			rr := httptest.NewRecorder()

			// when
			h.DeleteByID(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_Handler_RecordMovement(t *testing.T) {
	testCases := []struct {
		name         string
		body         string
		err          error
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Success - recorded",
			body:         `{"product_id":"P1","kind":"outbound","quantity":2}`,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "Error - unknown kind",
			body:         `{"product_id":"P1","kind":"sideways","quantity":2}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Kind":"failed on rule: oneof"}}`,
		},
		{
			name:         "Error - zero quantity",
			body:         `{"product_id":"P1","kind":"inbound","quantity":0}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Quantity":"failed on rule: required"}}`,
		},
		{
			name:         "Error - quantity above limit",
			body:         `{"product_id":"P1","kind":"inbound","quantity":1000000001}`,
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"validation_errors":{"Quantity":"failed on rule: max"}}`,
		},
		{
			name:         "Error - insufficient stock",
			body:         `{"product_id":"P1","kind":"outbound","quantity":9}`,
			err:          perrors.ErrInsufficientStock,
			expectedCode: http.StatusConflict,
			expectedBody: `{"error":"insufficient stock"}`,
		},
		{
			name:         "Error - unknown product",
			body:         `{"product_id":"P9","kind":"inbound","quantity":1}`,
			err:          perrors.ErrProductNotFound,
			expectedCode: http.StatusNotFound,
			expectedBody: `{"error":"product not found"}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			m := &mockInventoryService{
				movement: service.MovementDto{ID: "m1", ProductID: "P1", Kind: "outbound", Quantity: 2},
				error:    tc.err,
			}
			h := newTestHandler(m)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/movements", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			// when
			h.RecordMovement(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code, "status code should match")
			if tc.expectedBody != "" {
				assert.JSONEq(t, tc.expectedBody, rr.Body.String(), "response body should match")
			}
		})
	}
}

func Test_Handler_ReportDefaults(t *testing.T) {
	// given
	m := &mockInventoryService{}
	h := newTestHandler(m)

	// when
	rr := httptest.NewRecorder()
	h.Popular(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/popular", nil))

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 30*day, m.gotWindow)
	assert.Equal(t, 5, m.gotLimit)

	// when
	rr = httptest.NewRecorder()
	h.Inactive(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/inactive?days=7", nil))

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 7*day, m.gotWindow)

	// when
	rr = httptest.NewRecorder()
	h.MostProfitable(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/most-profitable?limit=0", nil))

	// then
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid limit number: 0"}`, rr.Body.String())
}

func Test_Handler_Profit_Range(t *testing.T) {
	testCases := []struct {
		name         string
		query        string
		err          error
		expectedCode int
		expectedFrom *time.Time
		expectedTo   *time.Time
	}{
		{
			name:         "Success - open range",
			expectedCode: http.StatusOK,
		},
		{
			name:         "Success - dates",
			query:        "?from=2025-03-01&to=2025-03-02",
			expectedCode: http.StatusOK,
			expectedFrom: ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
			expectedTo:   ptr(time.Date(2025, 3, 2, 23, 59, 59, 999999999, time.UTC)),
		},
		{
			name:         "Error - malformed date",
			query:        "?from=yesterday",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Error - reversed range",
			query:        "?from=2025-03-02&to=2025-03-01",
			err:          fmt.Errorf("%w: range starts after it ends", perrors.ErrValidation),
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			m := &mockInventoryService{error: tc.err}
			h := newTestHandler(m)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/profit"+tc.query, nil)
			rr := httptest.NewRecorder()

			// when
			h.Profit(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusOK {
				assert.Equal(t, tc.expectedFrom, m.gotRange.From)
				assert.Equal(t, tc.expectedTo, m.gotRange.To)
			}
		})
	}
}

func Test_Handler_Backup(t *testing.T) {
	testCases := []struct {
		name         string
		err          error
		expectedCode int
		expectedBody string
	}{
		{name: "Success", expectedCode: http.StatusCreated, expectedBody: `{"files":["a.json"]}`},
		{name: "Error - backup failed", err: perrors.ErrBackupFailed, expectedCode: http.StatusInternalServerError, expectedBody: `{"error":"Failed to create backup"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			h := newTestHandler(&mockInventoryService{error: tc.err})
			rr := httptest.NewRecorder()

			// when
			h.Backup(rr, httptest.NewRequest(http.MethodPost, "/api/v1/backups", nil))

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			assert.JSONEq(t, tc.expectedBody, rr.Body.String())
		})
	}
}

func Test_Handler_Routes(t *testing.T) {
	// given
	m := &mockInventoryService{
		product:   service.ProductDto{ID: "P1"},
		products:  []service.ProductDto{},
		movements: []service.MovementDto{},
	}
	router := server.NewChiRouter(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	newTestHandler(m).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	routes := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/products", http.StatusOK},
		{http.MethodGet, "/api/v1/products/P1", http.StatusOK},
		{http.MethodGet, "/api/v1/products/P1/movements", http.StatusOK},
		{http.MethodGet, "/api/v1/products/P1/profit", http.StatusOK},
		{http.MethodDelete, "/api/v1/products/P1", http.StatusNoContent},
		{http.MethodGet, "/api/v1/movements?limit=10", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/low-stock", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/profit", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/profit/daily", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/profit/monthly", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/most-profitable", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/inactive", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/popular", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/stock-flow", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/summary", http.StatusOK},
		{http.MethodPost, "/api/v1/backups", http.StatusCreated},
	}
	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			// given
			req, err := http.NewRequest(route.method, srv.URL+route.path, nil)
			require.NoError(t, err)

			// when
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			// then
			assert.Equal(t, route.code, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
		})
	}
}

func Test_Handler_RespondServiceError_Unknown(t *testing.T) {
	// given
	h := newTestHandler(&mockInventoryService{error: errors.New("boom")})
	rr := httptest.NewRecorder()

	// when
	h.Summary(rr, httptest.NewRequest(http.MethodGet, "/api/v1/reports/summary", nil))

	// then
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Failed to build summary"}`, rr.Body.String())
}

func ptr[T any](v T) *T {
	return &v
}
