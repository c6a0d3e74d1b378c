// Package githubsink files one GitHub issue per exchange using the
// google/go-github SDK, following the same rate-limit-aware wrapper
// shape as a GitHub forge provider: every API call's response is
// checked and a warning logged once the remaining quota runs low.
package githubsink

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v69/github"
	"github.com/routecraftjs/routecraft"
)

// rateLimitWarningThreshold triggers a log warning when the remaining
// rate limit drops below this value.
const rateLimitWarningThreshold = 100

// Options configures a GitHub issue sink.
type Options struct {
	// Repo is "owner/name". Required.
	Repo string
	// Token is the GitHub API token used for authentication. Required.
	Token string
	// BaseURL configures a GitHub Enterprise API base. Empty uses
	// github.com.
	BaseURL string
	// TitleHeader names the header used as the issue title, falling
	// back to DefaultTitle when absent. Default: "routecraft.github.title".
	TitleHeader string
	// DefaultTitle is used when the exchange carries no title header.
	DefaultTitle string
	// Labels are applied to every created issue.
	Labels []string
}

type sink struct {
	opts   Options
	client *github.Client
	logger routecraft.Logger
}

// New returns a routecraft.Destination that creates a GitHub issue from
// each exchange: the body becomes the issue body, and the title comes
// from opts.TitleHeader (or opts.DefaultTitle if unset).
func New(httpClient *http.Client, opts Options, logger routecraft.Logger) (routecraft.Destination, error) {
	if opts.Repo == "" {
		return nil, fmt.Errorf("githubsink: Repo is required")
	}
	if opts.TitleHeader == "" {
		opts.TitleHeader = "routecraft.github.title"
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = "routecraft exchange"
	}
	if logger == nil {
		logger = routecraft.NewDiscardLogger()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	client := github.NewClient(httpClient).WithAuthToken(opts.Token)
	if opts.BaseURL != "" && opts.BaseURL != "https://api.github.com" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure enterprise url: %w", err)
		}
	}

	s := &sink{opts: opts, client: client, logger: logger}
	return routecraft.DestinationFunc(s.send), nil
}

func (s *sink) send(ex *routecraft.Exchange) error {
	owner, name, err := splitRepo(s.opts.Repo)
	if err != nil {
		return err
	}

	title := resolveTitle(s.opts, ex.Headers)
	body := fmt.Sprint(ex.Body)
	req := &github.IssueRequest{Title: &title, Body: &body}
	if len(s.opts.Labels) > 0 {
		req.Labels = &s.opts.Labels
	}

	_, resp, err := s.client.Issues.Create(context.Background(), owner, name, req)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	s.checkRate(resp)
	return nil
}

func (s *sink) checkRate(resp *github.Response) {
	if resp == nil {
		return
	}
	remaining := resp.Rate.Remaining
	if remaining > 0 && remaining < rateLimitWarningThreshold {
		s.logger.Warn("github rate limit low",
			"remaining", remaining,
			"limit", resp.Rate.Limit,
			"reset", resp.Rate.Reset.Format(time.RFC3339),
		)
	}
}

func resolveTitle(opts Options, headers routecraft.Headers) string {
	if v, ok := headers[opts.TitleHeader]; ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return opts.DefaultTitle
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}
