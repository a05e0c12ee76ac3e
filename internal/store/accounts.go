// Package store persists account records in PostgreSQL. All JSONB columns
// are rewritten whole per update, but each update touches only its own
// column: last-write-wins per field, never across fields.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
)

// AccountStore reads and updates rows of the accounts table.
type AccountStore struct {
	pool *pgxpool.Pool
}

// New constructs an AccountStore over an existing pool.
func New(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountColumns = `id, email, configuration, session_details, listing_data, message, last_updated_at`

// Get fetches one account by id.
func (s *AccountStore) Get(ctx context.Context, accountID string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return account, nil
}

// ListEnabled fetches all accounts with scrape_enabled = true in their
// configuration.
func (s *AccountStore) ListEnabled(ctx context.Context) ([]*model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+`
		 FROM accounts
		 WHERE (configuration->>'scrape_enabled')::boolean IS TRUE
		 ORDER BY last_updated_at NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("query enabled accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a             model.Account
		configuration []byte
		sessionRaw    []byte
		listingRaw    []byte
		message       *string
		lastUpdated   *time.Time
	)
	if err := row.Scan(&a.ID, &a.Email, &configuration, &sessionRaw, &listingRaw, &message, &lastUpdated); err != nil {
		return nil, err
	}

	if len(configuration) > 0 {
		if err := json.Unmarshal(configuration, &a.Configuration); err != nil {
			return nil, fmt.Errorf("decode configuration: %w", err)
		}
	}
	if len(sessionRaw) > 0 {
		if err := json.Unmarshal(sessionRaw, &a.SessionDetails); err != nil {
			return nil, fmt.Errorf("decode session_details: %w", err)
		}
	}
	if len(listingRaw) > 0 {
		if err := json.Unmarshal(listingRaw, &a.ListingData); err != nil {
			return nil, fmt.Errorf("decode listing_data: %w", err)
		}
	}
	if message != nil {
		a.Message = *message
	}
	if lastUpdated != nil {
		a.LastUpdatedAt = *lastUpdated
	}
	return &a, nil
}

// UpdateSession rewrites session_details.
func (s *AccountStore) UpdateSession(ctx context.Context, accountID string, details map[string]string) error {
	return s.updateJSON(ctx, accountID, "session_details", details)
}

// UpdateConfiguration rewrites configuration.
func (s *AccountStore) UpdateConfiguration(ctx context.Context, accountID string, cfg model.Configuration) error {
	return s.updateJSON(ctx, accountID, "configuration", cfg)
}

// UpdateListingData rewrites listing_data and advances last_updated_at.
func (s *AccountStore) UpdateListingData(ctx context.Context, accountID string, data model.ListingSnapshot) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal listing_data: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE accounts SET listing_data = $2::jsonb, last_updated_at = now() WHERE id = $1`,
		accountID, string(raw))
	if err != nil {
		return fmt.Errorf("update listing_data for %s: %w", accountID, err)
	}
	return nil
}

// TouchLastUpdated advances last_updated_at without touching anything else.
// Used on cycles that change nothing (empty fetch, no new ids) so the record
// still shows the account was polled.
func (s *AccountStore) TouchLastUpdated(ctx context.Context, accountID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET last_updated_at = now() WHERE id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("touch last_updated_at for %s: %w", accountID, err)
	}
	return nil
}

func (s *AccountStore) updateJSON(ctx context.Context, accountID, column string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", column, err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE accounts SET `+column+` = $2::jsonb WHERE id = $1`,
		accountID, string(raw))
	if err != nil {
		return fmt.Errorf("update %s for %s: %w", column, accountID, err)
	}
	return nil
}
