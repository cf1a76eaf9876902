package distributor

import (
	"errors"
	"testing"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/models"
)

const voltmaxGridHTML = `<html><body>
<div class="catalog-grid">
	<div class="product-tile" data-sku="VM-100">
		<a href="/product/VM-100"><img src="/cdn/vm-100.jpg"></a>
		<h4 class="product-name">Disjuntor Bipolar 40A</h4>
		<span class="price-tag">R$ 89,90</span>
		<span class="brand">WEG</span>
		<div class="stock-badge">Em estoque</div>
	</div>
	<div class="product-tile" data-sku="VM-101">
		<a href="/product/VM-101"></a>
		<h4 class="product-name">Cabo Flexível 2,5mm 100m</h4>
		<span class="price-tag">R$ 219,00</span>
		<span class="brand">Prysmian</span>
		<div class="stock-badge">Esgotado</div>
	</div>
	<div class="product-tile" data-sku="VM-102">
		<h4 class="product-name"></h4>
	</div>
</div>
</body></html>`

func TestParseVoltmaxGrid(t *testing.T) {
	items, err := parseVoltmaxGrid(voltmaxGridHTML)
	if err != nil {
		t.Fatalf("parse grid: %v", err)
	}
	// The untitled third tile is a placeholder card and must be skipped.
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}

	first := items[0]
	if first.Code != "VM-100" || first.Title != "Disjuntor Bipolar 40A" {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.PriceText != "R$ 89,90" || first.Manufacturer != "WEG" {
		t.Fatalf("unexpected first item fields: %+v", first)
	}
	if first.DetailURL != "/product/VM-100" {
		t.Fatalf("detail url = %q", first.DetailURL)
	}
	if len(first.ImageURLs) != 1 || first.ImageURLs[0] != "/cdn/vm-100.jpg" {
		t.Fatalf("image urls = %v", first.ImageURLs)
	}

	if items[1].Availability != "Esgotado" {
		t.Fatalf("availability = %q", items[1].Availability)
	}
}

func TestParseVoltmaxGridMissingContainer(t *testing.T) {
	_, err := parseVoltmaxGrid(`<html><body><p>loading...</p></body></html>`)
	var sel SelectorError
	if !errors.As(err, &sel) {
		t.Fatalf("err = %v, want SelectorError", err)
	}
	if sel.Selector != "div.catalog-grid" {
		t.Fatalf("selector = %q", sel.Selector)
	}
}

func TestParseVoltmaxGridEmptyGrid(t *testing.T) {
	items, err := parseVoltmaxGrid(`<html><body><div class="catalog-grid"></div></body></html>`)
	if err != nil {
		t.Fatalf("an empty grid is a valid page: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items = %d, want 0", len(items))
	}
}

func TestVoltmaxPageLostAfterTabTeardown(t *testing.T) {
	profile := config.DefaultProfile()
	profile.Identifier = "voltmax"
	profile.BaseURL = "https://shop.voltmax.test/"
	b := testBrowser(t)
	v := &Voltmax{profile: profile, browser: b}

	if v.pageLost() {
		t.Fatalf("fresh adapter must not report a lost page")
	}

	tab, err := b.tab()
	if err != nil {
		t.Fatalf("tab: %v", err)
	}
	b.dropTab(tab)
	if !v.pageLost() {
		t.Fatalf("a tab teardown must force the next listing to re-navigate")
	}

	// A successful listing records the current epoch and clears the flag.
	v.pageEpoch = b.Teardowns()
	if v.pageLost() {
		t.Fatalf("recorded epoch must mark the page as loaded again")
	}
}

func TestVoltmaxCatalogURL(t *testing.T) {
	profile := config.DefaultProfile()
	profile.Identifier = "voltmax"
	profile.BaseURL = "https://shop.voltmax.test/"
	v := &Voltmax{profile: profile}

	tests := []struct {
		name     string
		category string
		query    string
		want     string
	}{
		{name: "no filters", want: "https://shop.voltmax.test/catalog"},
		{name: "category", category: "electrical", want: "https://shop.voltmax.test/catalog?category=electrical"},
		{name: "both", category: "electrical", query: "cabo 2,5mm", want: "https://shop.voltmax.test/catalog?category=electrical&q=cabo+2%2C5mm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.catalogURL(models.Filters{Category: tt.category, Query: tt.query})
			if got != tt.want {
				t.Fatalf("catalogURL = %q, want %q", got, tt.want)
			}
		})
	}
}
