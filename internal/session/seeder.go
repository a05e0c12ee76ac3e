package session

import "context"

// Seeder performs the initial credential acquisition for an account. The
// interactive login (browser flow, captcha) runs outside the poll cycle;
// whatever implements this interface hands back the raw session fields to
// persist on the account via Store.UpdateSession. The poll cycle itself never
// logs in: an account without seeded material surfaces ErrNoSessionSeed and
// stays enabled until a Seeder has run.
type Seeder interface {
	// Seed authenticates the account and returns the session fields in
	// storage form, as accepted by Load.
	Seed(ctx context.Context, email, password string) (map[string]string, error)
}
