package scraper_test

import (
	"fmt"
	"testing"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
	"github.com/mohdtalal3/immowelt-backend/internal/scraper"
)

func listings(ids ...string) []model.Listing {
	out := make([]model.Listing, len(ids))
	for i, id := range ids {
		out[i] = model.Listing{ID: id, Title: "listing " + id}
	}
	return out
}

func ids(in []model.Listing) []string {
	out := make([]string, len(in))
	for i, l := range in {
		out[i] = l.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ── New-offer detection ────────────────────────────────────────────────────

func TestDiffListings_NewAndMerged(t *testing.T) {
	// Previous [1,2], fetch [3,1]: only 3 is new, merged keeps order [3,1,2].
	diff := scraper.DiffListings(listings("3", "1"), listings("1", "2"))

	if got := ids(diff.NewOffers); !equal(got, []string{"3"}) {
		t.Errorf("new offers = %v, want [3]", got)
	}
	if got := ids(diff.Merged); !equal(got, []string{"3", "1", "2"}) {
		t.Errorf("merged = %v, want [3 1 2]", got)
	}
	if diff.FirstRun {
		t.Error("FirstRun = true with a non-empty previous snapshot")
	}
}

func TestDiffListings_PreservesFetchedOrder(t *testing.T) {
	diff := scraper.DiffListings(listings("9", "7", "8"), listings("5"))
	if got := ids(diff.NewOffers); !equal(got, []string{"9", "7", "8"}) {
		t.Errorf("new offers = %v, want fetched order [9 7 8]", got)
	}
}

// ── Idempotence ────────────────────────────────────────────────────────────

func TestDiffListings_UnchangedFetchIsIdempotent(t *testing.T) {
	previous := listings("1", "2", "3")

	first := scraper.DiffListings(listings("1", "2", "3"), previous)
	second := scraper.DiffListings(listings("1", "2", "3"), first.Merged)

	for i, diff := range []scraper.DiffResult{first, second} {
		if len(diff.NewOffers) != 0 {
			t.Errorf("run %d: new offers = %v, want none", i+1, ids(diff.NewOffers))
		}
		if len(diff.Merged) != len(previous) {
			t.Errorf("run %d: merged length = %d, want %d (no extra truncation)", i+1, len(diff.Merged), len(previous))
		}
	}
}

// ── First run ──────────────────────────────────────────────────────────────

func TestDiffListings_FirstRun(t *testing.T) {
	fetched := listings("1", "2", "3")
	diff := scraper.DiffListings(fetched, nil)

	if !diff.FirstRun {
		t.Error("FirstRun = false with an empty previous snapshot")
	}
	if got := ids(diff.Merged); !equal(got, []string{"1", "2", "3"}) {
		t.Errorf("merged = %v, want all fetched listings verbatim", got)
	}
}

// ── Truncation ─────────────────────────────────────────────────────────────

func TestDiffListings_CapsMergedHistory(t *testing.T) {
	var previous []model.Listing
	for i := 0; i < scraper.MaxStoredOffers; i++ {
		previous = append(previous, model.Listing{ID: fmt.Sprintf("old-%d", i)})
	}

	diff := scraper.DiffListings(listings("new-1", "new-2"), previous)

	if len(diff.Merged) != scraper.MaxStoredOffers {
		t.Fatalf("merged length = %d, want cap %d", len(diff.Merged), scraper.MaxStoredOffers)
	}
	if diff.Merged[0].ID != "new-1" || diff.Merged[1].ID != "new-2" {
		t.Error("new offers must sit at the top of the merged list")
	}
	// The oldest entries are evicted from the tail.
	if last := diff.Merged[len(diff.Merged)-1].ID; last != fmt.Sprintf("old-%d", scraper.MaxStoredOffers-3) {
		t.Errorf("tail = %s, oldest entries not evicted", last)
	}
}
