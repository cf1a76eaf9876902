package normalize

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-extract-catalog/models"
)

// UncategorizedBucket is the category assigned when neither the site nor the
// keyword heuristics produce one.
const UncategorizedBucket = "uncategorized"

// categoryKeywords drives the title/manufacturer fallback when a site ships
// no category field. First match wins, checked in declaration order.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"power-tools", []string{"furadeira", "parafusadeira", "serra", "esmerilhadeira", "drill", "grinder", "saw"}},
	{"hand-tools", []string{"martelo", "chave", "alicate", "hammer", "wrench", "plier", "screwdriver"}},
	{"electrical", []string{"cabo", "disjuntor", "tomada", "fio", "cable", "breaker", "socket", "wire"}},
	{"plumbing", []string{"tubo", "conexao", "registro", "valvula", "pipe", "valve", "fitting"}},
	{"safety", []string{"luva", "capacete", "oculos", "bota", "glove", "helmet", "goggle"}},
	{"fasteners", []string{"parafuso", "porca", "arruela", "bucha", "screw", "nut", "washer", "anchor"}},
}

// knownManufacturers are brands that appear across the supported portals,
// used when a raw item carries no structured manufacturer field.
var knownManufacturers = []string{
	"Bosch", "Makita", "DeWalt", "Tramontina", "Vonder", "Stanley",
	"Milwaukee", "Irwin", "3M", "Siemens", "Schneider", "WEG",
}

// Normalizer builds canonical ProductRecords from raw per-site fields. The
// clock is injectable so the transform is pure under test.
type Normalizer struct {
	PriceValidity time.Duration
	Now           func() time.Time
}

// New returns a Normalizer stamping prices valid for the given horizon.
func New(priceValidity time.Duration) *Normalizer {
	if priceValidity <= 0 {
		priceValidity = 7 * 24 * time.Hour
	}
	return &Normalizer{
		PriceValidity: priceValidity,
		Now:           time.Now,
	}
}

// Normalize converts one raw listing item into a canonical record. It never
// fails: missing or malformed fields degrade to defaults.
func (n *Normalizer) Normalize(distributor string, raw *models.RawListingItem) *models.ProductRecord {
	if raw == nil {
		return nil
	}
	now := n.Now()

	amount, currency := ParsePrice(raw.PriceText)
	if currency == "" {
		currency = "BRL"
	}

	manufacturer, model := deriveManufacturerModel(raw)

	sku := strings.TrimSpace(raw.Code)
	synthetic := false
	if sku == "" {
		sku = syntheticSKU(distributor, raw)
		synthetic = true
	}

	return &models.ProductRecord{
		SKU:          sku,
		Distributor:  distributor,
		Title:        collapseWhitespace(raw.Title),
		Category:     deriveCategory(raw, manufacturer),
		Manufacturer: manufacturer,
		Model:        model,
		Price: models.Price{
			Currency:   currency,
			Amount:     amount,
			ValidUntil: now.Add(n.PriceValidity),
		},
		Availability: deriveAvailability(raw),
		ImageURLs:    raw.ImageURLs,
		SyntheticSKU: synthetic,
		LastUpdated:  now,
	}
}

// syntheticSKU builds a stable fallback identifier from the page position and
// a short content hash. Stable across runs for identical source data, unlike
// a random suffix, but still flagged so downstream consumers treat it with
// lower trust.
func syntheticSKU(distributor string, raw *models.RawListingItem) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s|%s|%s", raw.Title, raw.DetailURL, firstImage(raw))
	return fmt.Sprintf("%s-P%d-%08X", strings.ToUpper(distributor), raw.Position, h.Sum32())
}

func firstImage(raw *models.RawListingItem) string {
	if len(raw.ImageURLs) > 0 {
		return raw.ImageURLs[0]
	}
	return ""
}

func deriveCategory(raw *models.RawListingItem, manufacturer string) string {
	if c := strings.TrimSpace(raw.Category); c != "" {
		return strings.ToLower(collapseWhitespace(c))
	}

	haystack := strings.ToLower(raw.Title + " " + manufacturer)
	for _, entry := range categoryKeywords {
		for _, word := range entry.words {
			if strings.Contains(haystack, word) {
				return entry.category
			}
		}
	}
	return UncategorizedBucket
}

func deriveManufacturerModel(raw *models.RawListingItem) (manufacturer, model string) {
	manufacturer = strings.TrimSpace(raw.Manufacturer)
	model = strings.TrimSpace(raw.Model)

	if manufacturer == "" {
		lower := strings.ToLower(raw.Title)
		for _, brand := range knownManufacturers {
			if strings.Contains(lower, strings.ToLower(brand)) {
				manufacturer = brand
				break
			}
		}
	}

	if model == "" && manufacturer != "" {
		// "Furadeira Bosch GSB 550" -> model is what follows the brand.
		lower := strings.ToLower(raw.Title)
		idx := strings.Index(lower, strings.ToLower(manufacturer))
		if idx >= 0 {
			rest := strings.TrimSpace(raw.Title[idx+len(manufacturer):])
			fields := strings.Fields(rest)
			if len(fields) > 0 && len(fields) <= 3 {
				model = strings.Join(fields, " ")
			} else if len(fields) > 3 {
				model = strings.Join(fields[:2], " ")
			}
		}
	}
	return manufacturer, model
}

func deriveAvailability(raw *models.RawListingItem) models.Availability {
	text := strings.ToLower(strings.TrimSpace(raw.Availability))
	out := models.Availability{}

	switch {
	case text == "":
		// No availability signal: assume orderable, quantity unknown.
		out.InStock = true
	case strings.Contains(text, "indispon"), strings.Contains(text, "esgotado"),
		strings.Contains(text, "out of stock"), strings.Contains(text, "unavailable"):
		out.InStock = false
	default:
		out.InStock = true
	}

	if qty := strings.TrimSpace(raw.QuantityText); qty != "" {
		var digits strings.Builder
		for _, r := range qty {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() > 0 {
			if value, err := strconv.Atoi(digits.String()); err == nil {
				out.Quantity = &value
				if value == 0 {
					out.InStock = false
				}
			}
		}
	}
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
