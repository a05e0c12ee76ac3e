// Package scraper implements the per-account poll cycle: listing diffing,
// duplicate-safe contact dispatch and record persistence.
package scraper

import "github.com/mohdtalal3/immowelt-backend/internal/model"

// MaxStoredOffers caps the retained offer history per account.
const MaxStoredOffers = 50

// DiffResult is the outcome of comparing a fresh fetch against the stored
// snapshot.
type DiffResult struct {
	// NewOffers are fetched listings absent from the previous snapshot, in
	// fetched order.
	NewOffers []model.Listing
	// Merged is NewOffers prepended to the previous offers, truncated to
	// MaxStoredOffers. Most-recent-first ordering is preserved.
	Merged []model.Listing
	// FirstRun is set when the previous snapshot held no offers. The caller
	// must skip contact dispatch: bootstrapping an account must not
	// blast-contact the entire backlog.
	FirstRun bool
}

// DiffListings computes the new-offer set and the capped merged history.
// Identity is the platform-assigned listing id; nothing else is compared, so
// an unchanged fetch yields an empty new-offer set and no extra truncation.
// Callers handle the empty-fetch case before diffing; an empty fetched slice
// here would wrongly age out the whole snapshot.
func DiffListings(fetched, previous []model.Listing) DiffResult {
	previousIDs := make(map[string]struct{}, len(previous))
	for _, offer := range previous {
		previousIDs[offer.ID] = struct{}{}
	}

	var newOffers []model.Listing
	for _, listing := range fetched {
		if _, seen := previousIDs[listing.ID]; !seen {
			newOffers = append(newOffers, listing)
		}
	}

	merged := make([]model.Listing, 0, len(newOffers)+len(previous))
	merged = append(merged, newOffers...)
	merged = append(merged, previous...)
	if len(merged) > MaxStoredOffers {
		merged = merged[:MaxStoredOffers]
	}

	return DiffResult{
		NewOffers: newOffers,
		Merged:    merged,
		FirstRun:  len(previous) == 0,
	}
}
