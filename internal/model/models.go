// Package model defines shared data structures for the scraping engine.
package model

import "time"

// Account mirrors one row of the accounts table. The JSONB columns
// (configuration, session_details, listing_data) are decoded into the typed
// structures below; unknown keys inside them are dropped on decode.
type Account struct {
	ID             string
	Email          string
	Configuration  Configuration
	SessionDetails map[string]string // token fields + session_created_at
	ListingData    ListingSnapshot
	Message        string // contact message text, stored separately from the form
	LastUpdatedAt  time.Time
}

// Configuration is the mutable per-account configuration JSONB.
// Updates always rewrite the whole structure, so every field set by another
// code path must be represented here or it is lost on the next write.
type Configuration struct {
	Criteria      map[string]any `json:"criteria,omitempty"`
	Paging        *Paging        `json:"paging,omitempty"`
	ContactForm   *ContactForm   `json:"contact_form,omitempty"`
	ExcludedTerms []string       `json:"excluded_terms,omitempty"`
	ProxyPort     string         `json:"proxy_port,omitempty"`
	ScrapeEnabled bool           `json:"scrape_enabled"`
	ContactedAds  int            `json:"contacted_ads"`
}

// Paging controls search result paging. The platform orders results
// most-recent-first when order is DateDesc.
type Paging struct {
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Order string `json:"order"`
}

// DefaultPaging is used when an account has no paging configured.
func DefaultPaging() *Paging {
	return &Paging{Page: 1, Size: 50, Order: "DateDesc"}
}

// ContactForm holds the contact-request template for an account.
// The household/work/income/move-in fields are opaque coded strings with
// platform-defined semantics. Message is filled in at dispatch time from the
// account's separate message field.
type ContactForm struct {
	Salutation          string `json:"salutation"`
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Email               string `json:"email"`
	PhoneNumber         string `json:"phoneNumber,omitempty"`
	Message             string `json:"message,omitempty"`
	HouseholdType       string `json:"householdType"`
	WorkStatus          string `json:"workStatus"`
	NetMonthlyIncome    string `json:"netMonthlyIncome"`
	PreferredMoveInDate string `json:"preferredMoveInDate"`
}

// Listing is one classified offer from the search feed. Published is assigned
// by this system at fetch time; the platform feed carries no publish
// timestamp.
type Listing struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Published string `json:"published"`
}

// ListingSnapshot is the listing_data JSONB: the retained offer history plus
// the contacted-id dedup window. Offers is most-recent-first and capped;
// ContactedIDs is most-recently-contacted-first and capped.
type ListingSnapshot struct {
	LastLatest   string    `json:"last_latest,omitempty"`
	Offers       []Listing `json:"offers"`
	ContactedIDs []string  `json:"contacted_ids"`
}
