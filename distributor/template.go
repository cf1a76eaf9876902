package distributor

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-extract-catalog/config"
	"github.com/aluiziolira/go-extract-catalog/models"
)

// Placeholder values that must be replaced when onboarding a distributor.
// The adapter fails fast while any of them remain, instead of silently
// returning empty data against the wrong selectors.
const (
	templateCardSelector   = "CHANGE_ME_CARD_SELECTOR"
	templateLoginMarker    = "CHANGE_ME_LOGIN_MARKER"
	templateDetailSelector = "CHANGE_ME_DETAIL_SELECTOR"
)

// Template is the skeleton for onboarding a new distributor portal. Copy
// this file, register the new identifier, replace the placeholder selectors,
// and implement the three capabilities against the portal's markup.
type Template struct {
	profile *config.DistributorProfile
}

// NewTemplate builds the skeleton adapter. It is intentionally not
// registered; a copy registers itself under the new distributor identifier.
func NewTemplate(profile *config.DistributorProfile) (Adapter, error) {
	return &Template{profile: profile}, nil
}

func (t *Template) configured() error {
	for _, placeholder := range []string{templateCardSelector, templateLoginMarker, templateDetailSelector} {
		if len(placeholder) >= len("CHANGE_ME") && placeholder[:len("CHANGE_ME")] == "CHANGE_ME" {
			return fmt.Errorf("%w: replace %s before activating %s", ErrNotConfigured, placeholder, t.profile.Identifier)
		}
	}
	return nil
}

// Authenticate fails until the adapter is configured.
func (t *Template) Authenticate(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if err := t.configured(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: Authenticate not implemented", ErrNotConfigured)
}

// ListPage fails until the adapter is configured.
func (t *Template) ListPage(ctx context.Context, cursor *Cursor, filters models.Filters) ([]*models.RawListingItem, bool, error) {
	if err := t.configured(); err != nil {
		return nil, false, err
	}
	return nil, false, fmt.Errorf("%w: ListPage not implemented", ErrNotConfigured)
}

// FetchDetail fails until the adapter is configured.
func (t *Template) FetchDetail(ctx context.Context, sku string) (*models.RawListingItem, error) {
	if err := t.configured(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: FetchDetail not implemented", ErrNotConfigured)
}

// Close releases nothing; the skeleton holds no resources.
func (t *Template) Close() error {
	return nil
}
