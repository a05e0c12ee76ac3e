package scraper

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
)

// DefaultContactHistoryCap bounds the contacted-id dedup window. The window
// is recency-biased, not a global guarantee: ids older than the cap can be
// contacted again if the platform resurfaces them.
const DefaultContactHistoryCap = 50

// Pacing between outbound contact calls, to stay under the platform's
// abuse-detection radar.
const (
	contactDelayMin = 2 * time.Second
	contactDelayMax = 3 * time.Second
)

// ContactSender sends one contact request for a listing id.
type ContactSender interface {
	Contact(ctx context.Context, id string, form model.ContactForm) error
}

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Contacted int
	Failed    int
	Skipped   int // already in the dedup window
	// ContactedIDs are the successfully contacted ids, in contact order.
	ContactedIDs []string
}

// Dispatcher sends contact messages to new offers, skipping anything already
// in the contacted-id history and pacing consecutive sends.
type Dispatcher struct {
	log *slog.Logger

	// HistoryCap bounds the contacted-id window kept per account.
	HistoryCap int
	// Sleep and Jitter are replaceable in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() time.Duration
}

// NewDispatcher builds a Dispatcher with the given dedup window cap
// (<= 0 falls back to DefaultContactHistoryCap).
func NewDispatcher(historyCap int, log *slog.Logger) *Dispatcher {
	if historyCap <= 0 {
		historyCap = DefaultContactHistoryCap
	}
	return &Dispatcher{
		log:        log.With(slog.String("component", "dispatcher")),
		HistoryCap: historyCap,
		Sleep:      sleepCtx,
		Jitter:     contactJitter,
	}
}

// Run contacts each offer in order unless its id is already in history.
// A pacing delay follows every send, success or failure; skips are free.
// The returned result feeds MergeContactHistory and the lifetime counter.
func (d *Dispatcher) Run(ctx context.Context, sender ContactSender, offers []model.Listing, form model.ContactForm, history []string) DispatchResult {
	contacted := make(map[string]struct{}, len(history))
	for _, id := range history {
		contacted[id] = struct{}{}
	}

	var res DispatchResult
	for _, offer := range offers {
		if _, dup := contacted[offer.ID]; dup {
			res.Skipped++
			d.log.Info("skipping already contacted offer",
				slog.String("id", offer.ID),
				slog.String("title", offer.Title))
			continue
		}

		d.log.Info("contacting offer",
			slog.String("id", offer.ID),
			slog.String("title", offer.Title),
			slog.String("url", offer.URL))

		if err := sender.Contact(ctx, offer.ID, form); err != nil {
			res.Failed++
			d.log.Error("contact failed",
				slog.String("id", offer.ID),
				slog.String("error", err.Error()))
		} else {
			res.Contacted++
			res.ContactedIDs = append(res.ContactedIDs, offer.ID)
		}

		if err := d.Sleep(ctx, d.Jitter()); err != nil {
			break
		}
	}

	d.log.Info("dispatch summary",
		slog.Int("contacted", res.Contacted),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped))
	return res
}

// MergeContactHistory prepends newly contacted ids (most recent first) to the
// existing history and truncates to limit.
func MergeContactHistory(newIDs, history []string, limit int) []string {
	merged := make([]string, 0, len(newIDs)+len(history))
	merged = append(merged, newIDs...)
	merged = append(merged, history...)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func contactJitter() time.Duration {
	return contactDelayMin + time.Duration(rand.Int63n(int64(contactDelayMax-contactDelayMin)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
