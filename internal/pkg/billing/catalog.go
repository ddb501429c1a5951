package billing

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// FallbackTier is what MapPriceToTier returns alongside ErrUnknownPrice.
const FallbackTier = TierFree

// PriceCatalog maps provider price ids to tiers.
type PriceCatalog map[string]Tier

// NewPriceCatalog builds a catalog from raw price-id/tier pairs, rejecting
// entries with empty ids or unknown tiers.
func NewPriceCatalog(raw map[string]string) (PriceCatalog, error) {
	catalog := make(PriceCatalog, len(raw))
	for priceID, rawTier := range raw {
		id := strings.TrimSpace(priceID)
		if id == "" {
			return nil, fmt.Errorf("%w: empty price id", ErrInvalidCatalog)
		}
		tier, err := ParseTier(rawTier)
		if err != nil {
			return nil, fmt.Errorf("%w: price %s: %v", ErrInvalidCatalog, id, err)
		}
		catalog[id] = tier
	}
	return catalog, nil
}

// MapPriceToTier resolves a price id. An unknown id logs a warning and returns
// FallbackTier together with ErrUnknownPrice, so callers cannot mistake the
// fallback for a real mapping.
func (c PriceCatalog) MapPriceToTier(priceID string) (Tier, error) {
	id := strings.TrimSpace(priceID)
	if tier, ok := c[id]; ok {
		return tier, nil
	}
	log.Warnf("[Billing] price %q is not in the catalog (%d known prices), falling back to %s", id, len(c), FallbackTier)
	return FallbackTier, fmt.Errorf("%w: %q", ErrUnknownPrice, id)
}

// ResolveTier picks the first price in priceIDs that the catalog knows.
func (c PriceCatalog) ResolveTier(priceIDs []string) (Tier, string, error) {
	for _, id := range priceIDs {
		if tier, ok := c[strings.TrimSpace(id)]; ok {
			return tier, id, nil
		}
	}
	if len(priceIDs) == 0 {
		return FallbackTier, "", fmt.Errorf("%w: subscription has no price", ErrUnknownPrice)
	}
	tier, err := c.MapPriceToTier(priceIDs[0])
	return tier, priceIDs[0], err
}
