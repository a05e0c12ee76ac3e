package immowelt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohdtalal3/immowelt-backend/internal/model"
	"github.com/mohdtalal3/immowelt-backend/internal/session"
)

// Platform endpoints.
const (
	refreshURL    = "https://signin.immowelt.de/refresh"
	searchAPIURL  = "https://www.immowelt.de/serp-bff/search"
	contactAPIURL = "https://www.immowelt.de/contact-request-service/contacting"

	exposeURLFormat = "https://www.immowelt.de/expose/%s"
)

// ErrNotAuthenticated means the client has no usable access token. Callers
// should run the session guard before searching or contacting.
var ErrNotAuthenticated = errors.New("not authenticated")

// Client talks to the platform API for one account. Not safe for concurrent
// use; every account gets its own instance.
type Client struct {
	caller *Caller
	proxy  string
	tokens session.TokenSet
	log    *slog.Logger

	// Now stamps discovery timestamps on fetched listings; the feed itself
	// carries no publish time. Replaceable in tests.
	Now func() time.Time
}

// NewClient builds a Client sending all calls through caller, optionally via
// a per-account proxy.
func NewClient(caller *Caller, proxy string, log *slog.Logger) *Client {
	return &Client{
		caller: caller,
		proxy:  proxy,
		log:    log.With(slog.String("component", "immowelt-client")),
		Now:    time.Now,
	}
}

// SetSession installs the credential set used on subsequent calls.
func (c *Client) SetSession(tokens session.TokenSet) {
	c.tokens = tokens
}

// RefreshSession exchanges the current session cookies for fresh tokens at
// the signin refresh endpoint. It returns the token fields found in the
// response cookies; fields the endpoint did not rotate are simply absent and
// the caller merges them from the previous set.
func (c *Client) RefreshSession(ctx context.Context) (map[string]string, error) {
	resp, err := c.caller.Call(ctx, Request{
		Method: "GET",
		URL:    refreshURL,
		Headers: map[string]string{
			"Origin":         "https://www.immowelt.de",
			"Referer":        "https://www.immowelt.de/",
			"Sec-Fetch-Site": "same-site",
			"Sec-Fetch-Mode": "cors",
			"Sec-Fetch-Dest": "empty",
		},
		Cookies: c.tokens.Fields(),
		Proxy:   c.proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	fields := make(map[string]string)
	for name, value := range resp.Cookies {
		fields[name] = value
	}
	return fields, nil
}

// listingID tolerates both JSON string and bare number ids; the platform has
// shipped both shapes across endpoint versions.
type listingID string

func (id *listingID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = listingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = listingID(n.String())
	return nil
}

type searchResponse struct {
	Classifieds []struct {
		ID    listingID `json:"id"`
		Title string    `json:"title"`
	} `json:"classifieds"`
}

// Search posts the account's saved search and returns the listing feed in
// API order (most-recent-first under DateDesc paging). Each listing gets the
// expose URL and a discovery timestamp assigned here.
func (c *Client) Search(ctx context.Context, criteria map[string]any, paging *model.Paging) ([]model.Listing, error) {
	if !c.tokens.Usable() {
		return nil, ErrNotAuthenticated
	}

	if criteria == nil {
		criteria = map[string]any{}
	}
	if paging == nil {
		paging = model.DefaultPaging()
	}

	payload, err := json.Marshal(map[string]any{
		"criteria": criteria,
		"paging":   paging,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search payload: %w", err)
	}

	resp, err := c.caller.Call(ctx, Request{
		Method: "POST",
		URL:    searchAPIURL,
		Headers: map[string]string{
			"Content-Type":   "application/json; charset=utf-8",
			"Origin":         "https://www.immowelt.de",
			"Referer":        "https://www.immowelt.de/classified-search",
			"Sec-Fetch-Site": "same-origin",
		},
		Cookies: c.tokens.Fields(),
		Body:    payload,
		Proxy:   c.proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	discovered := c.Now().Format("2006-01-02T15:04:05")
	listings := make([]model.Listing, 0, len(parsed.Classifieds))
	for _, item := range parsed.Classifieds {
		id := string(item.ID)
		title := item.Title
		if title == "" {
			title = "Unknown"
		}
		listings = append(listings, model.Listing{
			ID:        id,
			URL:       fmt.Sprintf(exposeURLFormat, id),
			Title:     title,
			Published: discovered,
		})
	}

	c.log.Info("search complete", slog.Int("listings", len(listings)))
	return listings, nil
}

// Contact sends one contact request for a listing. A nil error means the
// platform accepted the message (2xx).
func (c *Client) Contact(ctx context.Context, id string, form model.ContactForm) error {
	if !c.tokens.Usable() {
		return ErrNotAuthenticated
	}

	// The coded fields fall back to the platform's standard answer codes
	// when the form leaves them unset.
	salutation := defaultIfEmpty(form.Salutation, "mr")
	household := defaultIfEmpty(form.HouseholdType, "1")
	workStatus := defaultIfEmpty(form.WorkStatus, "6")
	income := defaultIfEmpty(form.NetMonthlyIncome, "5")
	moveIn := defaultIfEmpty(form.PreferredMoveInDate, "4")

	// Payload shape is fixed by the contact-request service, including the
	// duplicated legacy keys (houseHoldType, totalNetIncomeBeforeTaxRange).
	payload, err := json.Marshal(map[string]any{
		"salutation":                   salutation,
		"firstName":                    form.FirstName,
		"lastName":                     form.LastName,
		"email":                        form.Email,
		"phoneNumber":                  form.PhoneNumber,
		"message":                      form.Message,
		"isOwner":                      false,
		"newsletterOptout":             false,
		"newsletterOptInPreference":    "email-sms",
		"householdType":                household,
		"workStatus":                   workStatus,
		"netMonthlyIncome":             income,
		"preferredMoveInDate":          moveIn,
		"fullName":                     "",
		"language":                     "de",
		"classifiedId":                 id,
		"brand":                        "immowelt",
		"houseHoldType":                household,
		"totalNetIncomeBeforeTaxRange": income,
		"platform":                     "Website",
	})
	if err != nil {
		return fmt.Errorf("marshal contact payload: %w", err)
	}

	_, err = c.caller.Call(ctx, Request{
		Method: "POST",
		URL:    contactAPIURL,
		Headers: map[string]string{
			"Accept":        "application/json",
			"Content-Type":  "text/plain;charset=UTF-8",
			"Origin":        "https://www.immowelt.de",
			"Referer":       "https://www.immowelt.de",
			"Authorization": "Bearer " + c.tokens.Field(session.FieldAccessToken),
		},
		Cookies: map[string]string{
			session.FieldDeviceID:       c.tokens.Field(session.FieldDeviceID),
			session.FieldDeviceIDCompat: c.tokens.Field(session.FieldDeviceIDCompat),
			session.FieldAuth0:          c.tokens.Field(session.FieldAuth0),
			session.FieldAuth0Compat:    c.tokens.Field(session.FieldAuth0Compat),
		},
		Body:  payload,
		Proxy: c.proxy,
	})
	if err != nil {
		return fmt.Errorf("contact listing %s: %w", id, err)
	}
	return nil
}

func defaultIfEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
