package normalize

import (
	"reflect"
	"testing"
	"time"

	"github.com/aluiziolira/go-extract-catalog/models"
)

func fixedNormalizer() *Normalizer {
	n := New(7 * 24 * time.Hour)
	n.Now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	return n
}

func TestNormalizeIdempotent(t *testing.T) {
	n := fixedNormalizer()
	raw := &models.RawListingItem{
		Code:      "FG-1001",
		Title:     "Furadeira  de   Impacto Bosch GSB 550",
		PriceText: "R$ 349,90",
		ImageURLs: []string{"https://cdn.example/fg-1001.jpg"},
		Position:  3,
	}

	first := n.Normalize("ferragold", raw)
	second := n.Normalize("ferragold", raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestNormalizeFields(t *testing.T) {
	n := fixedNormalizer()
	raw := &models.RawListingItem{
		Code:         "FG-1001",
		Title:        "Furadeira de Impacto Bosch GSB 550",
		PriceText:    "R$ 349,90",
		Availability: "Em estoque",
		QuantityText: "Estoque: 12 un",
	}

	record := n.Normalize("ferragold", raw)
	if record.SKU != "FG-1001" {
		t.Fatalf("sku = %q", record.SKU)
	}
	if record.SyntheticSKU {
		t.Fatalf("site-provided code must not be flagged synthetic")
	}
	if record.Price.Amount != 349.90 {
		t.Fatalf("amount = %v, want 349.90", record.Price.Amount)
	}
	if record.Price.Currency != "BRL" {
		t.Fatalf("currency = %q, want BRL", record.Price.Currency)
	}
	if got := record.Price.ValidUntil.Sub(record.LastUpdated); got != 7*24*time.Hour {
		t.Fatalf("price validity horizon = %v, want 168h", got)
	}
	if record.Manufacturer != "Bosch" {
		t.Fatalf("manufacturer = %q, want Bosch", record.Manufacturer)
	}
	if record.Model != "GSB 550" {
		t.Fatalf("model = %q, want GSB 550", record.Model)
	}
	if record.Category != "power-tools" {
		t.Fatalf("category = %q, want power-tools", record.Category)
	}
	if !record.Availability.InStock {
		t.Fatalf("expected in stock")
	}
	if record.Availability.Quantity == nil || *record.Availability.Quantity != 12 {
		t.Fatalf("quantity = %v, want 12", record.Availability.Quantity)
	}
}

func TestNormalizeCategoryFallback(t *testing.T) {
	tests := []struct {
		name     string
		raw      models.RawListingItem
		expected string
	}{
		{
			name:     "site category wins",
			raw:      models.RawListingItem{Title: "Furadeira Bosch", Category: "Ferramentas Elétricas"},
			expected: "ferramentas elétricas",
		},
		{
			name:     "keyword from title",
			raw:      models.RawListingItem{Title: "Cabo Flexível 2,5mm 100m"},
			expected: "electrical",
		},
		{
			name:     "no match",
			raw:      models.RawListingItem{Title: "Produto Genérico XYZ"},
			expected: UncategorizedBucket,
		},
	}

	n := fixedNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := n.Normalize("ferragold", &tt.raw)
			if record.Category != tt.expected {
				t.Fatalf("category = %q, want %q", record.Category, tt.expected)
			}
		})
	}
}

func TestNormalizeSyntheticSKUStable(t *testing.T) {
	n := fixedNormalizer()
	raw := &models.RawListingItem{
		Title:     "Martelo de Unha Tramontina",
		PriceText: "R$ 29,90",
		DetailURL: "https://portal.example/produto/martelo",
		Position:  7,
	}

	first := n.Normalize("ferragold", raw)
	second := n.Normalize("ferragold", raw)

	if !first.SyntheticSKU {
		t.Fatalf("missing code must be flagged synthetic")
	}
	if first.SKU == "" {
		t.Fatalf("synthetic sku must be non-empty")
	}
	if first.SKU != second.SKU {
		t.Fatalf("synthetic sku unstable: %q vs %q", first.SKU, second.SKU)
	}

	other := *raw
	other.Title = "Martelo de Borracha Vonder"
	if n.Normalize("ferragold", &other).SKU == first.SKU {
		t.Fatalf("different items must not share a synthetic sku")
	}
}

func TestNormalizeMalformedPriceDegrades(t *testing.T) {
	n := fixedNormalizer()
	raw := &models.RawListingItem{Code: "X-1", Title: "Item", PriceText: "sob consulta"}

	record := n.Normalize("ferragold", raw)
	if record == nil {
		t.Fatalf("malformed price must not drop the record")
	}
	if record.Price.Amount != 0 {
		t.Fatalf("amount = %v, want 0", record.Price.Amount)
	}
}

func TestNormalizeAvailability(t *testing.T) {
	tests := []struct {
		name     string
		raw      models.RawListingItem
		inStock  bool
		quantity *int
	}{
		{name: "esgotado", raw: models.RawListingItem{Title: "Item", Availability: "Esgotado"}, inStock: false},
		{name: "out of stock", raw: models.RawListingItem{Title: "Item", Availability: "Out of stock"}, inStock: false},
		{name: "no signal", raw: models.RawListingItem{Title: "Item"}, inStock: true},
		{name: "zero quantity", raw: models.RawListingItem{Title: "Item", Availability: "Em estoque", QuantityText: "0"}, inStock: false, quantity: intPtr(0)},
	}

	n := fixedNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := n.Normalize("ferragold", &tt.raw)
			if record.Availability.InStock != tt.inStock {
				t.Fatalf("inStock = %v, want %v", record.Availability.InStock, tt.inStock)
			}
			if tt.quantity != nil {
				if record.Availability.Quantity == nil || *record.Availability.Quantity != *tt.quantity {
					t.Fatalf("quantity = %v, want %d", record.Availability.Quantity, *tt.quantity)
				}
			}
		})
	}
}

func intPtr(v int) *int { return &v }
