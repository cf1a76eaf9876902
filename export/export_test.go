package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-extract-catalog/models"
)

func sampleResult(total int) *models.ExtractionResult {
	products := make([]*models.ProductRecord, 0, total)
	for i := 0; i < total; i++ {
		quantity := 5
		products = append(products, &models.ProductRecord{
			SKU:          fmt.Sprintf("SKU-%03d", i),
			Distributor:  "ferragold",
			Title:        "Item",
			Category:     "electrical",
			Manufacturer: "WEG",
			Model:        "W22",
			Price:        models.Price{Currency: "BRL", Amount: 99.9, ValidUntil: time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)},
			Availability: models.Availability{InStock: true, Quantity: &quantity},
			ImageURLs:    []string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"},
			LastUpdated:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		})
	}
	return &models.ExtractionResult{
		Distributor:    "ferragold",
		TotalProducts:  total,
		Products:       products,
		CategoryCounts: map[string]int{"electrical": total},
		PriceStats:     models.PriceStats{Min: 99.9, Max: 99.9, Avg: 99.9, Median: 99.9},
		DurationMs:     1200,
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC),
	}
}

func TestSinkWritesBothArtifacts(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := sink.Write("job-1", sampleResult(3)); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := os.ReadFile(sink.JSONPath("job-1"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded models.ExtractionResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.TotalProducts != 3 || len(decoded.Products) != 3 {
		t.Fatalf("json artifact totals = %d/%d, want 3/3", decoded.TotalProducts, len(decoded.Products))
	}

	f, err := os.Open(sink.CSVPath("job-1"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("csv rows = %d, want header + 3", len(records))
	}
	if records[0][0] != "sku" || records[0][5] != "price" {
		t.Fatalf("unexpected csv header: %v", records[0])
	}
	if records[1][5] != "99.90" || records[1][6] != "BRL" {
		t.Fatalf("unexpected csv price columns: %v", records[1])
	}
	if records[1][9] != "https://cdn.example/a.jpg https://cdn.example/b.jpg" {
		t.Fatalf("unexpected image urls column: %q", records[1][9])
	}
}

func TestSinkOverwritesOnReexport(t *testing.T) {
	sink, err := NewSink(t.TempDir())
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := sink.Write("job-1", sampleResult(5)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sink.Write("job-1", sampleResult(2)); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(sink.JSONPath("job-1"))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded models.ExtractionResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.TotalProducts != 2 {
		t.Fatalf("re-export must overwrite, got total %d", decoded.TotalProducts)
	}
}

func TestSinkLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.Write("job-1", sampleResult(1)); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want json + csv", len(entries))
	}
}

func TestSinkRejectsEmptyDir(t *testing.T) {
	if _, err := NewSink(""); err == nil {
		t.Fatalf("empty output directory must be rejected")
	}
}

func TestPersistErrorWraps(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocked, []byte("file, not a dir"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := NewSink(filepath.Join(blocked, "nested"))
	if err == nil {
		t.Fatalf("expected persist error")
	}
	var persist PersistError
	if !errors.As(err, &persist) {
		t.Fatalf("err = %T, want PersistError", err)
	}
	if persist.Err == nil {
		t.Fatalf("persist error must carry the cause")
	}
}
