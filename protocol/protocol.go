// Package protocol exposes one distributor's operations behind a uniform
// tool-invocation surface: a named tool, JSON params in, JSON-marshalable
// result out.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-extract-catalog/extract"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/aluiziolira/go-extract-catalog/session"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrUnknownTool is returned for tool names outside the surface.
var ErrUnknownTool = errors.New("protocol: unknown tool")

// ErrNotAuthenticated is returned when a tool requiring a session runs
// before authenticate.
var ErrNotAuthenticated = errors.New("protocol: authenticate first")

const detailCacheSize = 256

// Handler maps tool invocations onto one site adapter's operations via the
// orchestrator. Detail lookups are memoized in a bounded LRU cache.
// Invocations may arrive concurrently; the credential set is the only
// handler state the cache does not already guard.
type Handler struct {
	orch  *extract.Orchestrator
	cache *lru.Cache[string, *models.ProductRecord]

	mu    sync.Mutex
	creds session.Credentials
}

// NewHandler builds the tool surface over one orchestrator.
func NewHandler(orch *extract.Orchestrator) (*Handler, error) {
	cache, err := lru.New[string, *models.ProductRecord](detailCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create detail cache: %w", err)
	}
	return &Handler{orch: orch, cache: cache}, nil
}

type authenticateParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type listProductsParams struct {
	Filters models.Filters `json:"filters"`
}

type listProductsResult struct {
	Products []*models.ProductRecord `json:"products"`
	Total    int                     `json:"total"`
}

type getProductParams struct {
	SKU string `json:"sku"`
}

type extractCatalogParams struct {
	Mode      models.ExtractionMode `json:"mode"`
	Filters   models.Filters        `json:"filters"`
	BatchSize int                   `json:"batch_size"`
}

type checkStockParams struct {
	SKUs []string `json:"skus"`
}

// Invoke dispatches one tool call. Results are JSON-marshalable values.
func (h *Handler) Invoke(ctx context.Context, tool string, params json.RawMessage) (any, error) {
	switch tool {
	case "authenticate":
		return h.authenticate(ctx, params)
	case "list_products":
		return h.listProducts(ctx, params)
	case "get_product":
		return h.getProduct(ctx, params)
	case "extract_catalog":
		return h.extractCatalog(ctx, params)
	case "check_stock":
		return h.checkStock(ctx, params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
}

func (h *Handler) authenticate(ctx context.Context, params json.RawMessage) (any, error) {
	var p authenticateParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	creds := session.Credentials{Email: p.Email, Password: p.Password}
	sess, err := h.orch.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	h.setCredentials(creds)
	return sess, nil
}

func (h *Handler) listProducts(ctx context.Context, params json.RawMessage) (any, error) {
	var p listProductsParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	creds, err := h.credentials()
	if err != nil {
		return nil, err
	}
	products, err := h.orch.ListProducts(ctx, creds, p.Filters)
	if err != nil {
		return nil, err
	}
	return listProductsResult{Products: products, Total: len(products)}, nil
}

func (h *Handler) getProduct(ctx context.Context, params json.RawMessage) (any, error) {
	var p getProductParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.SKU == "" {
		return nil, fmt.Errorf("protocol: sku is required")
	}
	creds, err := h.credentials()
	if err != nil {
		return nil, err
	}

	if cached, ok := h.cache.Get(p.SKU); ok {
		return cached, nil
	}
	record, err := h.orch.GetProduct(ctx, creds, p.SKU)
	if err != nil {
		return nil, err
	}
	if record != nil {
		h.cache.Add(p.SKU, record)
	}
	return record, nil
}

func (h *Handler) extractCatalog(ctx context.Context, params json.RawMessage) (any, error) {
	var p extractCatalogParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Mode == "" {
		p.Mode = models.ModeFull
	}
	creds, err := h.credentials()
	if err != nil {
		return nil, err
	}

	job, err := h.orch.NewJob(p.Mode, p.Filters, p.BatchSize)
	if err != nil {
		return nil, err
	}
	// A failed non-full job may still carry a partial result; both come
	// back so the caller sees the best answer and the failure cause.
	result, runErr := h.orch.Run(ctx, job, creds)
	if result == nil {
		return nil, runErr
	}
	return result, runErr
}

func (h *Handler) checkStock(ctx context.Context, params json.RawMessage) (any, error) {
	var p checkStockParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.SKUs) == 0 {
		return map[string]int{}, nil
	}
	creds, err := h.credentials()
	if err != nil {
		return nil, err
	}
	return h.orch.CheckStock(ctx, creds, p.SKUs)
}

func (h *Handler) setCredentials(creds session.Credentials) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creds = creds
}

// credentials returns the stored credential set, or ErrNotAuthenticated when
// no authenticate call has succeeded yet.
func (h *Handler) credentials() (session.Credentials, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.creds.Email == "" {
		return session.Credentials{}, ErrNotAuthenticated
	}
	return h.creds, nil
}

func unmarshalParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return fmt.Errorf("protocol: invalid params: %w", err)
	}
	return nil
}
