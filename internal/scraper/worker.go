package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
	"github.com/mohdtalal3/immowelt-backend/internal/session"
)

// lastLatestFormat is the human-readable stamp stored in listing_data.
const lastLatestFormat = "02.01.2006, 15:04:05"

// Client is the per-account platform client the worker drives.
type Client interface {
	session.Client
	Search(ctx context.Context, criteria map[string]any, paging *model.Paging) ([]model.Listing, error)
	Contact(ctx context.Context, id string, form model.ContactForm) error
}

// Store persists cycle outcomes on the account record. Each method is a
// self-contained write; the three updates of a cycle (snapshot, contacted
// ids, counter) are deliberately non-atomic, matching the record contract.
type Store interface {
	session.Store
	UpdateListingData(ctx context.Context, accountID string, data model.ListingSnapshot) error
	TouchLastUpdated(ctx context.Context, accountID string) error
}

// Worker runs the full poll cycle for a single account: ensure a usable
// session, fetch the feed, diff against the stored snapshot, persist, then
// contact the new offers. Every failure path degrades to logged, persisted
// state rather than an error, so a scheduler can continue past one broken
// account.
type Worker struct {
	store      Store
	guard      *session.Guard
	dispatcher *Dispatcher
	newClient  func(proxyURL string) Client
	proxyBase  string
	log        *slog.Logger

	// Now stamps last_latest; replaceable in tests.
	Now func() time.Time
}

// NewWorker constructs a Worker. newClient builds a platform client bound to
// the given proxy URL ("" for direct); proxyBase is the PROXY_URL prefix
// completed by each account's proxy_port.
func NewWorker(store Store, guard *session.Guard, dispatcher *Dispatcher, newClient func(proxyURL string) Client, proxyBase string, log *slog.Logger) *Worker {
	return &Worker{
		store:      store,
		guard:      guard,
		dispatcher: dispatcher,
		newClient:  newClient,
		proxyBase:  proxyBase,
		log:        log.With(slog.String("component", "worker")),
		Now:        time.Now,
	}
}

// Run executes one cycle for account. It returns a success flag and the
// number of newly discovered offers; it never returns an error.
func (w *Worker) Run(ctx context.Context, account *model.Account) (bool, int) {
	log := w.log.With(
		slog.String("email", account.Email),
		slog.String("run_id", uuid.NewString()))

	log.Info("cycle started")

	client := w.newClient(w.proxyURL(account, log))

	_, state, err := w.guard.Ensure(ctx, account, client)
	if err != nil {
		// NO_SESSION and DISABLED are terminal for this account's cycle;
		// the guard has already persisted any disable.
		log.Error("no usable session, skipping cycle",
			slog.String("state", string(state)),
			slog.String("error", err.Error()))
		return false, 0
	}

	listings, err := client.Search(ctx, account.Configuration.Criteria, account.Configuration.Paging)
	if err != nil {
		log.Error("search failed", slog.String("error", err.Error()))
		w.touch(ctx, account.ID, log)
		return false, 0
	}
	if len(listings) == 0 {
		// Transient: a live market never drains to zero, so leave the
		// snapshot untouched and only advance the stamp.
		log.Warn("empty fetch, keeping previous snapshot")
		w.touch(ctx, account.ID, log)
		return true, 0
	}

	diff := DiffListings(listings, account.ListingData.Offers)
	if len(diff.NewOffers) == 0 {
		log.Info("no new listings")
		w.touch(ctx, account.ID, log)
		return true, 0
	}

	snapshot := model.ListingSnapshot{
		LastLatest:   w.Now().Format(lastLatestFormat),
		Offers:       diff.Merged,
		ContactedIDs: account.ListingData.ContactedIDs,
	}
	if err := w.store.UpdateListingData(ctx, account.ID, snapshot); err != nil {
		log.Error("saving snapshot failed", slog.String("error", err.Error()))
		return false, 0
	}
	log.Info("snapshot saved", slog.Int("new_offers", len(diff.NewOffers)))

	if diff.FirstRun {
		log.Info("first run, listings initialized without contact attempts",
			slog.Int("saved", len(diff.Merged)))
		return true, len(diff.NewOffers)
	}

	w.dispatch(ctx, account, diff.NewOffers, &snapshot, client, log)
	return true, len(diff.NewOffers)
}

// dispatch runs the auto-contact pass and persists its side effects
// (contacted-id history, lifetime counter). Missing form or message skips
// dispatch without error: both are recoverable by configuration, not
// re-login.
func (w *Worker) dispatch(ctx context.Context, account *model.Account, newOffers []model.Listing, snapshot *model.ListingSnapshot, client Client, log *slog.Logger) {
	form := account.Configuration.ContactForm
	if form == nil {
		log.Warn("no contact form configured, skipping auto-contact")
		return
	}
	if strings.TrimSpace(account.Message) == "" {
		log.Warn("no contact message configured, skipping auto-contact")
		return
	}

	targets := newOffers
	if len(account.Configuration.ExcludedTerms) > 0 {
		targets = make([]model.Listing, 0, len(newOffers))
		excluded := 0
		for _, offer := range newOffers {
			if ContainsExcludedTerm(offer.Title, account.Configuration.ExcludedTerms) {
				excluded++
				continue
			}
			targets = append(targets, offer)
		}
		if excluded > 0 {
			log.Info("offers excluded by term filter", slog.Int("excluded", excluded))
		}
	}
	if len(targets) == 0 {
		return
	}

	filled := *form
	filled.Message = account.Message

	res := w.dispatcher.Run(ctx, client, targets, filled, snapshot.ContactedIDs)

	if len(res.ContactedIDs) > 0 {
		snapshot.ContactedIDs = MergeContactHistory(res.ContactedIDs, snapshot.ContactedIDs, w.dispatcher.HistoryCap)
		if err := w.store.UpdateListingData(ctx, account.ID, *snapshot); err != nil {
			log.Error("saving contacted ids failed", slog.String("error", err.Error()))
		}
	}

	if res.Contacted > 0 {
		account.Configuration.ContactedAds += res.Contacted
		if err := w.store.UpdateConfiguration(ctx, account.ID, account.Configuration); err != nil {
			log.Error("updating contacted_ads counter failed", slog.String("error", err.Error()))
		} else {
			log.Info("contacted_ads counter updated",
				slog.Int("total", account.Configuration.ContactedAds))
		}
	}
}

func (w *Worker) proxyURL(account *model.Account, log *slog.Logger) string {
	port := account.Configuration.ProxyPort
	if port == "" {
		return ""
	}
	if w.proxyBase == "" {
		log.Warn("proxy_port configured but PROXY_URL unset, running direct")
		return ""
	}
	return w.proxyBase + port
}

func (w *Worker) touch(ctx context.Context, accountID string, log *slog.Logger) {
	if err := w.store.TouchLastUpdated(ctx, accountID); err != nil {
		log.Error("advancing last_updated_at failed", slog.String("error", err.Error()))
	}
}
