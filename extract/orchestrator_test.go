package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/distributor"
	"github.com/aluiziolira/go-extract-catalog/export"
	"github.com/aluiziolira/go-extract-catalog/models"
	"github.com/aluiziolira/go-extract-catalog/session"
	"github.com/aluiziolira/go-extract-catalog/workqueue"
)

// scriptedAdapter replays a fixed sequence of listing pages.
type scriptedAdapter struct {
	pages     [][]*models.RawListingItem
	more      []bool
	errAt     map[int]error // listing call index (0-based) -> error
	authErr   error
	authCalls int
	listCalls int
	details   map[string]*models.RawListingItem
}

func (s *scriptedAdapter) Authenticate(ctx context.Context, email, password string) (*models.AuthSession, error) {
	s.authCalls++
	if s.authErr != nil {
		return nil, s.authErr
	}
	now := time.Now()
	return &models.AuthSession{
		Distributor: "scripted",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
		Valid:       true,
	}, nil
}

func (s *scriptedAdapter) ListPage(ctx context.Context, cursor *distributor.Cursor, filters models.Filters) ([]*models.RawListingItem, bool, error) {
	call := s.listCalls
	s.listCalls++
	if err, ok := s.errAt[call]; ok {
		return nil, false, err
	}
	if call >= len(s.pages) {
		return nil, false, nil
	}
	cursor.Page++
	return s.pages[call], s.more[call], nil
}

func (s *scriptedAdapter) FetchDetail(ctx context.Context, sku string) (*models.RawListingItem, error) {
	if s.details == nil {
		return nil, nil
	}
	return s.details[sku], nil
}

func (s *scriptedAdapter) Close() error { return nil }

func rawItem(code string, price string) *models.RawListingItem {
	return &models.RawListingItem{
		Code:      code,
		Title:     "Item " + code,
		PriceText: price,
	}
}

func rawPage(start, count int) []*models.RawListingItem {
	page := make([]*models.RawListingItem, 0, count)
	for i := 0; i < count; i++ {
		page = append(page, rawItem(fmt.Sprintf("SKU-%03d", start+i), "R$ 10,00"))
	}
	return page
}

func scriptedProfile() *config.DistributorProfile {
	p := config.DefaultProfile()
	p.Identifier = "scripted"
	p.BaseURL = "https://portal.test"
	p.RetryBackoff = time.Millisecond
	p.RetryBackoffMax = time.Millisecond
	return p
}

func newTestOrchestrator(t *testing.T, adapter distributor.Adapter) (*Orchestrator, *export.Sink) {
	t.Helper()
	sink, err := export.NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	return New(scriptedProfile(), adapter, sink, workqueue.NewMetrics()), sink
}

func testCreds() session.Credentials {
	return session.Credentials{Email: "buyer@example.com", Password: "secret"}
}

func TestRunPagedConvergence(t *testing.T) {
	adapter := &scriptedAdapter{
		pages: [][]*models.RawListingItem{
			rawPage(0, 20),
			rawPage(20, 20),
			rawPage(40, 20),
			rawPage(40, 20), // full overlap: 0 new items
		},
		more: []bool{true, true, true, true},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	job, err := orch.NewJob(models.ModeFull, models.Filters{}, 50)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	result, err := orch.Run(context.Background(), job, testCreds())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if adapter.listCalls != 4 {
		t.Fatalf("listing calls = %d, want 4", adapter.listCalls)
	}
	if result.TotalProducts != 60 {
		t.Fatalf("total products = %d, want 60", result.TotalProducts)
	}
	if job.State != models.JobCompleted {
		t.Fatalf("job state = %s, want completed", job.State)
	}
	if job.Result != result {
		t.Fatalf("terminal job must carry its result")
	}
}

func TestRunScrollOverlapDeduped(t *testing.T) {
	adapter := &scriptedAdapter{
		pages: [][]*models.RawListingItem{
			{rawItem("ABC-1", "R$ 10,00"), rawItem("ABC-2", "R$ 20,00")},
			{rawItem("ABC-1", "R$ 10,00"), rawItem("ABC-3", "R$ 30,00")},
		},
		more: []bool{true, false},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	job, _ := orch.NewJob(models.ModeFull, models.Filters{}, 50)
	result, err := orch.Run(context.Background(), job, testCreds())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.TotalProducts != 3 {
		t.Fatalf("total products = %d, want 3", result.TotalProducts)
	}
	seen := 0
	for _, p := range result.Products {
		if p.SKU == "ABC-1" {
			seen++
		}
	}
	if seen != 1 {
		t.Fatalf("ABC-1 appears %d times, want exactly 1", seen)
	}
}

func TestRunAuthFailure(t *testing.T) {
	adapter := &scriptedAdapter{authErr: distributor.AuthError{Err: errors.New("wrong password")}}
	orch, _ := newTestOrchestrator(t, adapter)

	job, _ := orch.NewJob(models.ModeFull, models.Filters{}, 50)
	_, err := orch.Run(context.Background(), job, testCreds())

	var auth distributor.AuthError
	if !errors.As(err, &auth) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if job.State != models.JobFailed {
		t.Fatalf("job state = %s, want failed", job.State)
	}
	if adapter.authCalls != 1 {
		t.Fatalf("auth calls = %d, want 1 (no retries)", adapter.authCalls)
	}
	if adapter.listCalls != 0 {
		t.Fatalf("listing must not start after auth failure")
	}
}

func TestRunPartialExportOnFatalListingError(t *testing.T) {
	adapter := &scriptedAdapter{
		pages: [][]*models.RawListingItem{rawPage(0, 30)},
		more:  []bool{true},
		errAt: map[int]error{1: distributor.SelectorError{Selector: "section#catalogo"}},
	}
	orch, sink := newTestOrchestrator(t, adapter)

	job, _ := orch.NewJob(models.ModeIncremental, models.Filters{}, 50)
	result, err := orch.Run(context.Background(), job, testCreds())

	var sel distributor.SelectorError
	if !errors.As(err, &sel) {
		t.Fatalf("err = %v, want SelectorError", err)
	}
	if job.State != models.JobFailed {
		t.Fatalf("job state = %s, want failed", job.State)
	}
	if result == nil {
		t.Fatalf("incremental mode must surface the partial result")
	}
	if result.TotalProducts != 30 {
		t.Fatalf("partial total = %d, want 30", result.TotalProducts)
	}
	if !result.Partial {
		t.Fatalf("partial result must be flagged")
	}

	data, readErr := os.ReadFile(sink.JSONPath(job.ID))
	if readErr != nil {
		t.Fatalf("partial export missing: %v", readErr)
	}
	var exported models.ExtractionResult
	if err := json.Unmarshal(data, &exported); err != nil {
		t.Fatalf("partial export unreadable: %v", err)
	}
	if exported.TotalProducts != 30 {
		t.Fatalf("exported partial total = %d, want 30", exported.TotalProducts)
	}
}

func TestRunFullModeDiscardsPartial(t *testing.T) {
	adapter := &scriptedAdapter{
		pages: [][]*models.RawListingItem{rawPage(0, 30)},
		more:  []bool{true},
		errAt: map[int]error{1: distributor.SelectorError{Selector: "section#catalogo"}},
	}
	orch, sink := newTestOrchestrator(t, adapter)

	job, _ := orch.NewJob(models.ModeFull, models.Filters{}, 50)
	result, err := orch.Run(context.Background(), job, testCreds())
	if err == nil {
		t.Fatalf("expected fatal listing error")
	}
	if result != nil {
		t.Fatalf("full mode must discard partial results")
	}
	if _, statErr := os.Stat(sink.JSONPath(job.ID)); !os.IsNotExist(statErr) {
		t.Fatalf("full mode must not export a partial artifact")
	}
}

func TestRunCancellation(t *testing.T) {
	adapter := &scriptedAdapter{
		pages: [][]*models.RawListingItem{rawPage(0, 10)},
		more:  []bool{true},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, _ := orch.NewJob(models.ModeFull, models.Filters{}, 50)
	_, err := orch.Run(ctx, job, testCreds())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if job.State != models.JobFailed {
		t.Fatalf("job state = %s, want failed", job.State)
	}
}

func TestRunRejectsReusedJob(t *testing.T) {
	adapter := &scriptedAdapter{
		pages: [][]*models.RawListingItem{rawPage(0, 5)},
		more:  []bool{false},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	job, _ := orch.NewJob(models.ModeFull, models.Filters{}, 50)
	if _, err := orch.Run(context.Background(), job, testCreds()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := orch.Run(context.Background(), job, testCreds()); err == nil {
		t.Fatalf("terminal jobs are immutable; rerun must be rejected")
	}
}

func TestGetProduct(t *testing.T) {
	adapter := &scriptedAdapter{
		details: map[string]*models.RawListingItem{
			"FG-1": {Code: "FG-1", Title: "Alicate Tramontina", PriceText: "R$ 25,00"},
		},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	record, err := orch.GetProduct(context.Background(), testCreds(), "FG-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if record == nil || record.SKU != "FG-1" {
		t.Fatalf("record = %+v", record)
	}

	missing, err := orch.GetProduct(context.Background(), testCreds(), "NOPE")
	if err != nil {
		t.Fatalf("missing product must not error: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing product must be nil")
	}
}

func TestCheckStock(t *testing.T) {
	adapter := &scriptedAdapter{
		details: map[string]*models.RawListingItem{
			"A": {Code: "A", Title: "Item A", QuantityText: "7"},
			"B": {Code: "B", Title: "Item B", Availability: "Esgotado"},
			"C": {Code: "C", Title: "Item C"},
		},
	}
	orch, _ := newTestOrchestrator(t, adapter)

	stock, err := orch.CheckStock(context.Background(), testCreds(), []string{"A", "B", "C", "MISSING"})
	if err != nil {
		t.Fatalf("check stock: %v", err)
	}

	if stock["A"] != 7 {
		t.Fatalf("stock[A] = %d, want 7", stock["A"])
	}
	if stock["B"] != 0 {
		t.Fatalf("stock[B] = %d, want 0 (out of stock)", stock["B"])
	}
	if stock["C"] != StockUnknown {
		t.Fatalf("stock[C] = %d, want unknown", stock["C"])
	}
	if stock["MISSING"] != StockUnknown {
		t.Fatalf("stock[MISSING] = %d, want unknown", stock["MISSING"])
	}
}
