// Package models defines the data structures shared across the extraction
// subsystem.
package models

import "time"

// RawListingItem carries the untouched text fields scraped from one product
// card or detail page. It is transient: produced by a site adapter, consumed
// once by the normalizer, never persisted.
type RawListingItem struct {
	Code         string
	Title        string
	PriceText    string
	Category     string
	Manufacturer string
	Model        string
	Availability string
	QuantityText string
	ImageURLs    []string
	DetailURL    string
	Position     int
}

// Price is the normalized monetary value of a product. Scraped prices are
// time-bound estimates, not live quotes, so every price carries a validity
// horizon.
type Price struct {
	Currency   string    `csv:"currency" json:"currency"`
	Amount     float64   `csv:"price" json:"amount"`
	ValidUntil time.Time `csv:"valid_until" json:"valid_until"`
}

// Availability describes stock state. Quantity is nil when the site does not
// expose a number.
type Availability struct {
	InStock  bool `csv:"in_stock" json:"in_stock"`
	Quantity *int `csv:"quantity" json:"quantity"`
}

// ProductRecord is the canonical, cross-site representation of one product.
// SKU is non-empty and unique within one ExtractionResult.
type ProductRecord struct {
	SKU          string       `csv:"sku" json:"sku"`
	Distributor  string       `csv:"distributor" json:"distributor"`
	Title        string       `csv:"title" json:"title"`
	Category     string       `csv:"category" json:"category"`
	Manufacturer string       `csv:"manufacturer" json:"manufacturer"`
	Model        string       `csv:"model" json:"model"`
	Price        Price        `json:"price"`
	Availability Availability `json:"availability"`
	ImageURLs    []string     `csv:"image_urls" json:"image_urls"`
	SyntheticSKU bool         `csv:"synthetic_sku" json:"synthetic_sku"`
	LastUpdated  time.Time    `csv:"last_updated" json:"last_updated"`
}

// Key returns the dedup key for the record within one extraction run.
func (p *ProductRecord) Key() string {
	return p.Distributor + "/" + p.SKU
}

// Filters narrows a listing request. Zero value means "everything".
type Filters struct {
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
}
