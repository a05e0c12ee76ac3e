package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
)

// State of the session lifecycle for one poll cycle.
//
// Valid progression:
//
//	(no session material) ─► NO_SESSION            (terminal, seed externally)
//	age ≤ threshold       ─► FRESH ─► USABLE
//	age > threshold       ─► STALE ─► REFRESHING ─► USABLE
//	                                            └─► DISABLED (account auto-disabled)
type State string

const (
	StateNoSession  State = "NO_SESSION"
	StateFresh      State = "FRESH"
	StateStale      State = "STALE"
	StateRefreshing State = "REFRESHING"
	StateUsable     State = "USABLE"
	StateDisabled   State = "DISABLED"
)

// Tokens observed valid for ~60 minutes; refresh proactively before expiry.
const DefaultMaxAge = 50 * time.Minute

var (
	// ErrNoSessionSeed means the account has never been authenticated.
	// Initial login happens outside the poll cycle through a Seeder; the
	// account stays enabled.
	ErrNoSessionSeed = errors.New("no session seed: account must be authenticated externally")

	// ErrRefreshFailed means the refresh call exhausted its retry budget.
	// The guard has already disabled the account when this is returned.
	ErrRefreshFailed = errors.New("session refresh failed")
)

// Client is the subset of the platform client the guard drives.
type Client interface {
	// SetSession installs the credential set used for subsequent calls.
	SetSession(TokenSet)
	// RefreshSession exchanges current cookies for fresh token fields.
	RefreshSession(ctx context.Context) (map[string]string, error)
}

// Store persists guard side effects on the account record.
type Store interface {
	UpdateSession(ctx context.Context, accountID string, details map[string]string) error
	UpdateConfiguration(ctx context.Context, accountID string, cfg model.Configuration) error
}

// Guard decides, per cycle, whether an account's session is reusable,
// refreshable or dead. A refresh failure disables the account so a broken
// credential is not retried every cycle until a human re-authenticates.
type Guard struct {
	store Store
	log   *slog.Logger

	// MaxAge is the reuse threshold; sessions older than this are refreshed.
	MaxAge time.Duration
	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// NewGuard constructs a Guard with the default threshold and clock.
func NewGuard(store Store, log *slog.Logger) *Guard {
	return &Guard{
		store:  store,
		log:    log.With(slog.String("component", "session-guard")),
		MaxAge: DefaultMaxAge,
		Now:    time.Now,
	}
}

// Ensure loads the account's session into client and returns a usable token
// set. On a stale session it refreshes through client, merges the returned
// fields and persists the new session. The returned State is the terminal
// state reached this cycle.
//
// A refresh failure flips scrape_enabled to false and persists it; this is
// fatal for the account, not for the process.
func (g *Guard) Ensure(ctx context.Context, account *model.Account, client Client) (TokenSet, State, error) {
	if len(account.SessionDetails) == 0 {
		g.log.Warn("no session material, seed from frontend first",
			slog.String("email", account.Email))
		return TokenSet{}, StateNoSession, ErrNoSessionSeed
	}

	tokens := Load(account.SessionDetails)
	client.SetSession(tokens)

	if !tokens.IssuedAt.IsZero() {
		age := g.Now().Sub(tokens.IssuedAt)
		if age <= g.MaxAge {
			g.log.Info("session fresh",
				slog.String("email", account.Email),
				slog.Duration("age", age.Round(time.Second)))
			return tokens, StateUsable, nil
		}
		g.log.Warn("session stale, refreshing",
			slog.String("email", account.Email),
			slog.Duration("age", age.Round(time.Second)))
	} else {
		// Missing or unparseable issuance time: treat as stale.
		g.log.Warn("no valid session timestamp, refreshing",
			slog.String("email", account.Email))
	}

	return g.refresh(ctx, account, client, tokens)
}

func (g *Guard) refresh(ctx context.Context, account *model.Account, client Client, tokens TokenSet) (TokenSet, State, error) {
	fields, err := client.RefreshSession(ctx)
	if err != nil {
		g.disable(ctx, account)
		return TokenSet{}, StateDisabled, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Field-level merge: fields the refresh did not return are retained.
	merged := tokens.Merge(fields, g.Now())
	client.SetSession(merged)

	if err := g.store.UpdateSession(ctx, account.ID, merged.Dump(merged.IssuedAt)); err != nil {
		// The in-memory session still works for this cycle; the next cycle
		// will refresh again from the stale record.
		g.log.Error("persisting refreshed session failed",
			slog.String("email", account.Email),
			slog.String("error", err.Error()))
	} else {
		g.log.Info("session refreshed", slog.String("email", account.Email))
	}
	return merged, StateUsable, nil
}

// disable flips scrape_enabled off and persists the configuration, exactly
// once per cycle.
func (g *Guard) disable(ctx context.Context, account *model.Account) {
	account.Configuration.ScrapeEnabled = false
	if err := g.store.UpdateConfiguration(ctx, account.ID, account.Configuration); err != nil {
		g.log.Error("auto-disable failed",
			slog.String("email", account.Email),
			slog.String("error", err.Error()))
		return
	}
	g.log.Error("account auto-disabled (scrape_enabled=false), re-login required",
		slog.String("email", account.Email))
}
