// Package session manages the platform credential set and the per-cycle
// session lifecycle: load, freshness check, refresh and account auto-disable.
package session

import (
	"time"
)

// Named credential fields carried in session_details. Everything else in the
// persisted map is dropped on load.
const (
	FieldDeviceID         = "did"
	FieldDeviceIDCompat   = "did_compat"
	FieldAuth0            = "auth0"
	FieldAuth0Compat      = "auth0_compat"
	FieldAccessToken      = "oauth.access.token"
	FieldAccessExpiration = "oauth.access.expiration"

	fieldCreatedAt = "session_created_at"
)

var wantedFields = []string{
	FieldDeviceID,
	FieldDeviceIDCompat,
	FieldAuth0,
	FieldAuth0Compat,
	FieldAccessToken,
	FieldAccessExpiration,
}

// createdAtLayouts covers the timestamp variants found in stored records:
// RFC 3339 with and without sub-second precision or zone suffix.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// TokenSet is an immutable view of the credential fields for one account
// session plus the time the set was issued. IssuedAt is the zero time when
// the stored record had no parseable session_created_at.
type TokenSet struct {
	fields   map[string]string
	IssuedAt time.Time
}

// Load builds a TokenSet from a persisted session_details map. Unknown keys
// are silently dropped. A missing access token is a normal state, reported
// by Usable, never an error.
func Load(details map[string]string) TokenSet {
	fields := make(map[string]string, len(wantedFields))
	for _, k := range wantedFields {
		if v, ok := details[k]; ok && v != "" {
			fields[k] = v
		}
	}

	ts := TokenSet{fields: fields}
	if raw, ok := details[fieldCreatedAt]; ok {
		ts.IssuedAt = parseCreatedAt(raw)
	}
	return ts
}

func parseCreatedAt(raw string) time.Time {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Dump serializes the set for persistence, stamping issuedAt as
// session_created_at.
func (t TokenSet) Dump(issuedAt time.Time) map[string]string {
	out := make(map[string]string, len(t.fields)+1)
	for k, v := range t.fields {
		out[k] = v
	}
	out[fieldCreatedAt] = issuedAt.Format(time.RFC3339)
	return out
}

// Usable reports whether the set carries a non-empty access token.
func (t TokenSet) Usable() bool {
	return t.fields[FieldAccessToken] != ""
}

// Field returns the value of a named credential field, or "".
func (t TokenSet) Field(name string) string {
	return t.fields[name]
}

// Fields returns a copy of the credential fields, for use as request cookies.
func (t TokenSet) Fields() map[string]string {
	out := make(map[string]string, len(t.fields))
	for k, v := range t.fields {
		out[k] = v
	}
	return out
}

// Merge returns a new TokenSet with update applied on top of t: fields
// present in update overwrite, fields absent from update are retained.
// Keys outside the named credential set are ignored. The result carries
// issuedAt as its issuance time.
func (t TokenSet) Merge(update map[string]string, issuedAt time.Time) TokenSet {
	fields := make(map[string]string, len(t.fields))
	for k, v := range t.fields {
		fields[k] = v
	}
	for _, k := range wantedFields {
		if v, ok := update[k]; ok && v != "" {
			fields[k] = v
		}
	}
	return TokenSet{fields: fields, IssuedAt: issuedAt}
}
