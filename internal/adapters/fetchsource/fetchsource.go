// Package fetchsource polls a URL on an interval and emits each
// response as a message, carrying the HTTP status and content type as
// headers. A poll error is logged and skipped rather than ending the
// source, mirroring the per-account isolation of an email poller: one
// bad cycle never takes the whole source down.
package fetchsource

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/routecraftjs/routecraft"
	"github.com/routecraftjs/routecraft/internal/httpkit"
)

// Options configures a fetch source.
type Options struct {
	// URL is the target to poll. Required.
	URL string
	// Interval between polls. Required; New panics if zero.
	Interval time.Duration
	// MaxBytes caps the response body size read per poll. Zero uses
	// DefaultMaxBytes.
	MaxBytes int64
}

// DefaultMaxBytes bounds one poll's response body when Options.MaxBytes
// is left zero.
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// New returns a routecraft.Source that performs an immediate poll and
// then one more every opts.Interval, emitting the response body as the
// message and "routecraft.http.status"/"routecraft.http.content_type"
// as headers. Runs until the route's cancellation token is aborted.
func New(opts Options, logger routecraft.Logger) routecraft.Source {
	if opts.Interval <= 0 {
		panic("fetchsource: Interval must be positive")
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = routecraft.NewDiscardLogger()
	}

	client := httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))

	return routecraft.SourceFunc(func(ctx context.Context, emit routecraft.Emit) error {
		poll := func() {
			if err := pollOnce(ctx, client, opts.URL, maxBytes, emit); err != nil {
				logger.Warn("fetch poll failed, skipping cycle", "url", opts.URL, "error", err)
			}
		}

		poll()
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if ctx.Err() == context.Canceled {
					return nil
				}
				return ctx.Err()
			case <-ticker.C:
				poll()
			}
		}
	})
}

func pollOnce(ctx context.Context, client *http.Client, url string, maxBytes int64, emit routecraft.Emit) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return err
	}

	emit(string(body), routecraft.Headers{
		"routecraft.http.status":       resp.StatusCode,
		"routecraft.http.content_type": resp.Header.Get("Content-Type"),
	})
	return nil
}
