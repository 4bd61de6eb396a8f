// Package gmail implements the mailbox adapter for Gmail accounts.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/wheresmyjobat/wheresmyjobat/internal/common"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// defaultKeywords drive the candidate-message query. A message must match at
// least one to be considered job-application-related.
var defaultKeywords = []string{
	"interview", "application", "position", "role", "candidate",
	"hiring", "recruitment", "job", "career", "opportunity",
	"hr", "human resources", "talent", "recruiter",
}

// Config holds Gmail adapter configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Keywords     []string
	LookbackDays int
	MaxBodyChars int
}

// Client is the Gmail mailbox adapter. It owns the session-scoped
// processed-message set; the set is cleared whenever authentication resets.
type Client struct {
	oauth *oauth2.Config

	mu        sync.Mutex
	svc       *gmailv1.Service
	identity  string
	processed map[string]struct{}

	keywords     []string
	lookbackDays int
	maxBodyChars int
}

// New creates an unauthenticated Gmail adapter.
func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: gmail client id and secret are required", common.ErrMissingConfig)
	}

	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 7
	}
	maxBody := cfg.MaxBodyChars
	if maxBody <= 0 {
		maxBody = 1000
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gmailv1.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		processed:    make(map[string]struct{}),
		keywords:     keywords,
		lookbackDays: lookback,
		maxBodyChars: maxBody,
	}, nil
}

// AuthURL returns the Google consent page URL for the OAuth flow.
func (c *Client) AuthURL() (string, error) {
	return c.oauth.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Authenticate exchanges the authorization code for a token, builds the
// Gmail service, and resets the processed-message set.
func (c *Client) Authenticate(ctx context.Context, code string) (string, error) {
	tok, err := c.oauth.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithTokenSource(c.oauth.TokenSource(ctx, tok)))
	if err != nil {
		return "", fmt.Errorf("create gmail service: %w", err)
	}

	identity := ""
	if profile, profErr := svc.Users.GetProfile("me").Do(); profErr == nil {
		identity = profile.EmailAddress
	} else {
		slog.Warn("Gmail profile lookup failed after authentication", "error", profErr)
	}

	c.mu.Lock()
	c.svc = svc
	c.identity = identity
	c.processed = make(map[string]struct{})
	c.mu.Unlock()

	return identity, nil
}

// IsAuthenticated reports whether a Gmail service is available.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svc != nil
}

// Identity returns the authenticated account's email address.
func (c *Client) Identity(ctx context.Context) string {
	c.mu.Lock()
	svc, identity := c.svc, c.identity
	c.mu.Unlock()

	if identity != "" || svc == nil {
		return identity
	}

	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return ""
	}

	c.mu.Lock()
	c.identity = profile.EmailAddress
	c.mu.Unlock()
	return profile.EmailAddress
}

// ListCandidates returns ids of recent keyword-matching messages that have
// not been processed this session.
func (c *Client) ListCandidates(ctx context.Context, max int64) ([]string, error) {
	c.mu.Lock()
	svc := c.svc
	c.mu.Unlock()
	if svc == nil {
		return nil, common.ErrNotAuthenticated
	}

	resp, err := svc.Users.Messages.List("me").
		Q(c.buildQuery()).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", common.ErrProviderUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if _, seen := c.processed[m.Id]; !seen {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

// FetchAndDecode retrieves one message and decodes it to plain text. The id
// is marked processed before the fetch so a failed or discarded
// classification never causes a refetch.
func (c *Client) FetchAndDecode(ctx context.Context, id string) (model.EmailMessage, error) {
	c.mu.Lock()
	svc := c.svc
	if svc == nil {
		c.mu.Unlock()
		return model.EmailMessage{}, common.ErrNotAuthenticated
	}
	c.processed[id] = struct{}{}
	c.mu.Unlock()

	msg, err := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return model.EmailMessage{}, fmt.Errorf("%w: get message %s: %v", common.ErrProviderUnavailable, id, err)
	}

	return decodeMessage(msg, c.maxBodyChars), nil
}

// SeedProcessed marks the most recent keyword-matching messages as already
// processed so a freshly started monitor does not replay old mail.
func (c *Client) SeedProcessed(ctx context.Context, max int64) int {
	c.mu.Lock()
	svc := c.svc
	c.mu.Unlock()
	if svc == nil {
		return 0
	}

	resp, err := svc.Users.Messages.List("me").
		Q(c.buildQuery()).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		slog.Warn("Failed to seed processed-message set", "error", err)
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range resp.Messages {
		c.processed[m.Id] = struct{}{}
	}
	return len(resp.Messages)
}

// ProcessedCount returns the size of the session's processed-message set.
func (c *Client) ProcessedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processed)
}

// buildQuery renders the Gmail search query: any keyword, within the
// lookback window.
func (c *Client) buildQuery() string {
	quoted := make([]string, len(c.keywords))
	for i, k := range c.keywords {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return fmt.Sprintf("(%s) AND newer_than:%dd", strings.Join(quoted, " OR "), c.lookbackDays)
}
