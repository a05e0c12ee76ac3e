package immowelt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultRetryBudget is the attempt cap per call. The platform's soft
	// blocks usually clear within a handful of replays.
	DefaultRetryBudget = 20
	// DefaultRetryDelay is the fixed pause between attempts.
	DefaultRetryDelay = 2 * time.Second
)

var (
	// ErrSoftBlocked marks an anti-bot countermeasure: HTTP 403, or a body
	// carrying a CAPTCHA or 403 marker even under a 200.
	ErrSoftBlocked = errors.New("request soft-blocked")

	// ErrRequestFailed marks a plain non-2xx status.
	ErrRequestFailed = errors.New("request failed")
)

// outcome classes for one attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeSoftBlock
	outcomeHardFailure
	outcomeTransport
)

// classify buckets one attempt's result. The body markers are checked on
// every status: the platform serves CAPTCHA pages with a 200.
func classify(resp *Response, err error) outcome {
	if err != nil {
		return outcomeTransport
	}
	if isSoftBlocked(resp) {
		return outcomeSoftBlock
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return outcomeHardFailure
	}
	return outcomeSuccess
}

func isSoftBlocked(resp *Response) bool {
	if resp.StatusCode == 403 {
		return true
	}
	body := strings.ToLower(string(resp.Body))
	return strings.Contains(body, "captcha") || strings.Contains(body, "403")
}

// Caller replays one request against the transport until it succeeds or the
// retry budget runs out. Every attempt reissues the complete request; there
// is no partial resumption. Delays go through Sleep so tests can run with a
// zero-delay clock.
type Caller struct {
	transport Transport
	log       *slog.Logger

	Budget int
	Delay  time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
}

// NewCaller builds a Caller with the default budget and delay.
func NewCaller(transport Transport, log *slog.Logger) *Caller {
	return &Caller{
		transport: transport,
		log:       log.With(slog.String("component", "caller")),
		Budget:    DefaultRetryBudget,
		Delay:     DefaultRetryDelay,
		Sleep:     sleepCtx,
	}
}

// Call executes req with the bounded retry policy. A nil error means a 2xx
// response free of soft-block markers. On exhaustion the last failure is
// returned: the response (if any) plus an error wrapping ErrSoftBlocked or
// ErrRequestFailed, or the last transport error.
func (c *Caller) Call(ctx context.Context, req Request) (*Response, error) {
	var (
		lastResp *Response
		lastErr  error
	)

	for attempt := 1; attempt <= c.Budget; attempt++ {
		resp, err := c.transport.Do(ctx, req)

		switch classify(resp, err) {
		case outcomeSuccess:
			return resp, nil
		case outcomeSoftBlock:
			lastResp, lastErr = resp, fmt.Errorf("%w (status %d)", ErrSoftBlocked, resp.StatusCode)
		case outcomeHardFailure:
			lastResp, lastErr = resp, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
		case outcomeTransport:
			lastResp, lastErr = nil, err
		}

		if attempt == c.Budget {
			break
		}

		c.log.Warn("attempt failed, retrying",
			slog.String("url", req.URL),
			slog.Int("attempt", attempt),
			slog.Int("budget", c.Budget),
			slog.String("error", lastErr.Error()))

		if err := c.Sleep(ctx, c.Delay); err != nil {
			return lastResp, lastErr
		}
	}

	c.log.Error("retry budget exhausted",
		slog.String("url", req.URL),
		slog.Int("budget", c.Budget),
		slog.String("error", lastErr.Error()))
	return lastResp, lastErr
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
