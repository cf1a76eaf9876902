// Package distributor defines the site adapter capability set and its
// concrete per-portal implementations. Adapters navigate, select DOM
// elements, and extract raw text fields; normalization and deduplication
// happen downstream.
package distributor

import (
	"context"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/models"
)

// Cursor is the adapter-specific pagination position. Paged portals advance
// Page/Offset, infinite-scroll portals advance ScrollDepth, token-based APIs
// carry NextToken. The adapter owns which fields mean anything.
type Cursor struct {
	Page        int
	Offset      int
	ScrollDepth int
	NextToken   string
}

// Adapter is the capability set every distributor portal binding implements:
// authenticate, list one page, fetch one detail. Implementations must not
// normalize or deduplicate.
type Adapter interface {
	// Authenticate logs in and returns the captured session material.
	// Bad credentials or an unrecognized post-login page yield AuthError.
	Authenticate(ctx context.Context, email, password string) (*models.AuthSession, error)

	// ListPage fetches the page at the cursor, advances the cursor, and
	// reports whether more content is reachable.
	ListPage(ctx context.Context, cursor *Cursor, filters models.Filters) (items []*models.RawListingItem, more bool, err error)

	// FetchDetail fetches one product by site code. A missing product is
	// (nil, nil), not an error.
	FetchDetail(ctx context.Context, sku string) (*models.RawListingItem, error)

	// Close releases the underlying browser or HTTP resources. Safe to
	// call on every exit path.
	Close() error
}

// Factory builds an adapter bound to one distributor profile.
type Factory func(profile *config.DistributorProfile) (Adapter, error)
