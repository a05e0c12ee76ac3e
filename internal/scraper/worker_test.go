package scraper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
	"github.com/mohdtalal3/immowelt-backend/internal/scraper"
	"github.com/mohdtalal3/immowelt-backend/internal/session"
)

// fakeStore records every persisted write.
type fakeStore struct {
	sessions      []map[string]string
	configs       []model.Configuration
	listingWrites []model.ListingSnapshot
	touches       int
}

func (f *fakeStore) UpdateSession(ctx context.Context, id string, details map[string]string) error {
	f.sessions = append(f.sessions, details)
	return nil
}

func (f *fakeStore) UpdateConfiguration(ctx context.Context, id string, cfg model.Configuration) error {
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeStore) UpdateListingData(ctx context.Context, id string, data model.ListingSnapshot) error {
	f.listingWrites = append(f.listingWrites, data)
	return nil
}

func (f *fakeStore) TouchLastUpdated(ctx context.Context, id string) error {
	f.touches++
	return nil
}

// fakeWorkerClient satisfies scraper.Client.
type fakeWorkerClient struct {
	searchResult  []model.Listing
	searchErr     error
	searchCalls   int
	contactCalls  []string
	contactFailOn map[string]bool
	refreshFields map[string]string
	refreshErr    error
}

func (f *fakeWorkerClient) SetSession(session.TokenSet) {}

func (f *fakeWorkerClient) RefreshSession(ctx context.Context) (map[string]string, error) {
	return f.refreshFields, f.refreshErr
}

func (f *fakeWorkerClient) Search(ctx context.Context, criteria map[string]any, paging *model.Paging) ([]model.Listing, error) {
	f.searchCalls++
	return f.searchResult, f.searchErr
}

func (f *fakeWorkerClient) Contact(ctx context.Context, id string, form model.ContactForm) error {
	f.contactCalls = append(f.contactCalls, id)
	if f.contactFailOn[id] {
		return errors.New("contact rejected")
	}
	return nil
}

var workerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newWorker(store *fakeStore, client *fakeWorkerClient) *scraper.Worker {
	return newWorkerWith(store, client)
}

func testAccount(previous []model.Listing, contacted []string) *model.Account {
	return &model.Account{
		ID:    "acc-1",
		Email: "user@example.com",
		Configuration: model.Configuration{
			ScrapeEnabled: true,
			ContactForm:   &model.ContactForm{FirstName: "Max", LastName: "Mustermann", Email: "max@example.com"},
			ContactedAds:  7,
		},
		SessionDetails: map[string]string{
			session.FieldAccessToken: "tok-1",
			"session_created_at":     workerNow.Format(time.RFC3339),
		},
		ListingData: model.ListingSnapshot{Offers: previous, ContactedIDs: contacted},
		Message:     "Guten Tag, ich interessiere mich.",
	}
}

// ── Session failures ───────────────────────────────────────────────────────

func TestRun_NoSessionSeed(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{}
	account := testAccount(nil, nil)
	account.SessionDetails = nil

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if ok || n != 0 {
		t.Errorf("result = (%v, %d), want (false, 0)", ok, n)
	}
	if client.searchCalls != 0 {
		t.Error("search attempted without a session")
	}
}

// ── Fetch outcomes ─────────────────────────────────────────────────────────

func TestRun_EmptyFetchOnlyTouches(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: nil}
	account := testAccount(listings("1"), nil)

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 0 {
		t.Errorf("result = (%v, %d), want (true, 0)", ok, n)
	}
	if len(store.listingWrites) != 0 {
		t.Error("empty fetch must leave the snapshot untouched")
	}
	if store.touches != 1 {
		t.Errorf("last_updated_at touched %d times, want 1", store.touches)
	}
}

func TestRun_SearchFailure(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchErr: errors.New("blocked")}
	account := testAccount(listings("1"), nil)

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if ok || n != 0 {
		t.Errorf("result = (%v, %d), want (false, 0)", ok, n)
	}
	if store.touches != 1 {
		t.Errorf("last_updated_at touched %d times, want 1", store.touches)
	}
}

func TestRun_NoNewListings(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: listings("1", "2")}
	account := testAccount(listings("1", "2"), nil)

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 0 {
		t.Errorf("result = (%v, %d), want (true, 0)", ok, n)
	}
	if len(store.listingWrites) != 0 {
		t.Error("unchanged fetch must not rewrite the snapshot")
	}
	if store.touches != 1 {
		t.Errorf("last_updated_at touched %d times, want 1", store.touches)
	}
}

// ── First run ──────────────────────────────────────────────────────────────

func TestRun_FirstRunSkipsContact(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: listings("1", "2", "3")}
	// contacted_ids content must not matter on a first run.
	account := testAccount(nil, []string{"1"})

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 3 {
		t.Errorf("result = (%v, %d), want (true, 3)", ok, n)
	}
	if len(client.contactCalls) != 0 {
		t.Errorf("contact calls = %v, want none on first run", client.contactCalls)
	}
	if len(store.listingWrites) != 1 {
		t.Fatalf("listing writes = %d, want 1", len(store.listingWrites))
	}
	if got := ids(store.listingWrites[0].Offers); !equal(got, []string{"1", "2", "3"}) {
		t.Errorf("saved offers = %v, want all fetched listings", got)
	}
}

// ── Dispatch integration ───────────────────────────────────────────────────

func TestRun_ContactsNewOffers(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: listings("3", "1")}
	account := testAccount(listings("1", "2"), []string{"old-1"})

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 1 {
		t.Errorf("result = (%v, %d), want (true, 1)", ok, n)
	}
	if !equal(client.contactCalls, []string{"3"}) {
		t.Errorf("contact calls = %v, want [3]", client.contactCalls)
	}

	// Snapshot write, then contacted-ids write.
	if len(store.listingWrites) != 2 {
		t.Fatalf("listing writes = %d, want 2", len(store.listingWrites))
	}
	if got := ids(store.listingWrites[0].Offers); !equal(got, []string{"3", "1", "2"}) {
		t.Errorf("merged offers = %v, want [3 1 2]", got)
	}
	if got := store.listingWrites[1].ContactedIDs; !equal(got, []string{"3", "old-1"}) {
		t.Errorf("contacted ids = %v, want newly contacted prepended", got)
	}

	// Lifetime counter advanced once.
	if len(store.configs) != 1 {
		t.Fatalf("configuration writes = %d, want 1", len(store.configs))
	}
	if store.configs[0].ContactedAds != 8 {
		t.Errorf("contacted_ads = %d, want 8", store.configs[0].ContactedAds)
	}
}

func TestRun_DuplicateInHistoryNotContacted(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: listings("3", "1")}
	account := testAccount(listings("1", "2"), []string{"3"})

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 1 {
		t.Errorf("result = (%v, %d), want (true, 1)", ok, n)
	}
	if len(client.contactCalls) != 0 {
		t.Errorf("contact calls = %v, want none (id already in history)", client.contactCalls)
	}
	if len(store.configs) != 0 {
		t.Error("counter must not advance when nothing was contacted")
	}
	if len(store.listingWrites) != 1 {
		t.Errorf("listing writes = %d, want snapshot only", len(store.listingWrites))
	}
}

func TestRun_EmptyMessageSkipsDispatch(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: listings("3", "1")}
	account := testAccount(listings("1", "2"), nil)
	account.Message = "   "

	ok, n := newWorker(store, client).Run(context.Background(), account)

	// New offers still count as discovered; the snapshot is already saved.
	if !ok || n != 1 {
		t.Errorf("result = (%v, %d), want (true, 1)", ok, n)
	}
	if len(client.contactCalls) != 0 {
		t.Errorf("contact calls = %v, want none without a message", client.contactCalls)
	}
	if len(store.listingWrites) != 1 {
		t.Errorf("listing writes = %d, want snapshot only", len(store.listingWrites))
	}
}

func TestRun_MissingFormSkipsDispatch(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: listings("3")}
	account := testAccount(listings("1"), nil)
	account.Configuration.ContactForm = nil

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 1 {
		t.Errorf("result = (%v, %d), want (true, 1)", ok, n)
	}
	if len(client.contactCalls) != 0 {
		t.Error("contact attempted without a configured form")
	}
}

func TestRun_ExcludedTermNotContacted(t *testing.T) {
	store := &fakeStore{}
	client := &fakeWorkerClient{searchResult: []model.Listing{
		{ID: "3", Title: "Helles WG-Zimmer"},
		{ID: "4", Title: "3-Zimmer-Wohnung"},
	}}
	account := testAccount(listings("1"), nil)
	account.Configuration.ExcludedTerms = []string{"wg-zimmer"}

	ok, n := newWorker(store, client).Run(context.Background(), account)

	if !ok || n != 2 {
		t.Errorf("result = (%v, %d), want (true, 2)", ok, n)
	}
	if !equal(client.contactCalls, []string{"4"}) {
		t.Errorf("contact calls = %v, want excluded listing skipped", client.contactCalls)
	}
	// Excluded listings are still stored.
	if got := ids(store.listingWrites[0].Offers); !equal(got, []string{"3", "4", "1"}) {
		t.Errorf("saved offers = %v, want excluded listing retained", got)
	}
}

func TestRun_MessageFilledFromAccountField(t *testing.T) {
	store := &fakeStore{}
	var captured model.ContactForm
	client := &fakeWorkerClient{searchResult: listings("3")}
	// Wrap the client to capture the dispatched form.
	wrapped := &formCapturingClient{fakeWorkerClient: client, captured: &captured}
	w := newWorkerWith(store, wrapped)

	account := testAccount(listings("1"), nil)
	account.Message = "Individuelle Nachricht"

	ok, _ := w.Run(context.Background(), account)
	if !ok {
		t.Fatal("run failed")
	}
	if captured.Message != "Individuelle Nachricht" {
		t.Errorf("form message = %q, want account message", captured.Message)
	}
	if captured.FirstName != "Max" {
		t.Errorf("form first name = %q, want template value", captured.FirstName)
	}
}

type formCapturingClient struct {
	*fakeWorkerClient
	captured *model.ContactForm
}

func (f *formCapturingClient) Contact(ctx context.Context, id string, form model.ContactForm) error {
	*f.captured = form
	return f.fakeWorkerClient.Contact(ctx, id, form)
}

func newWorkerWith(store *fakeStore, client scraper.Client) *scraper.Worker {
	guard := session.NewGuard(store, testLogger)
	guard.Now = func() time.Time { return workerNow }

	dispatcher := scraper.NewDispatcher(50, testLogger)
	dispatcher.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	dispatcher.Jitter = func() time.Duration { return 0 }

	w := scraper.NewWorker(store, guard, dispatcher, func(proxyURL string) scraper.Client { return client }, "", testLogger)
	w.Now = func() time.Time { return workerNow }
	return w
}
