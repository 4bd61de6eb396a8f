// Package imap implements the mailbox adapter for plain IMAP accounts, for
// mailboxes that cannot use the Gmail API.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/wheresmyjobat/wheresmyjobat/internal/common"
	"github.com/wheresmyjobat/wheresmyjobat/internal/mailbox"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// envelopeScanCap bounds how many recent messages are inspected per listing;
// IMAP keyword filtering happens client-side, so every inspected message
// costs one envelope fetch.
const envelopeScanCap = 50

// Config holds IMAP adapter configuration. Credentials are configured up
// front; Authenticate performs the login rather than an OAuth exchange.
type Config struct {
	Host         string // host:port, e.g. imap.example.com:993
	Username     string
	Password     string
	Folder       string
	Keywords     []string
	LookbackDays int
	MaxBodyChars int
}

// Client is the IMAP mailbox adapter.
type Client struct {
	cfg Config

	mu        sync.Mutex
	conn      *imapclient.Client
	processed map[string]struct{}
}

// New creates an unauthenticated IMAP adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%w: imap host, username and password are required", common.ErrMissingConfig)
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = []string{
			"interview", "application", "position", "role", "candidate",
			"hiring", "recruitment", "job", "career", "opportunity",
			"hr", "human resources", "talent", "recruiter",
		}
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if cfg.MaxBodyChars <= 0 {
		cfg.MaxBodyChars = 1000
	}

	return &Client{
		cfg:       cfg,
		processed: make(map[string]struct{}),
	}, nil
}

// AuthURL is unsupported: IMAP authenticates with stored credentials.
func (c *Client) AuthURL() (string, error) {
	return "", fmt.Errorf("imap provider does not use an OAuth authorization URL")
}

// Authenticate logs in with the configured credentials. The authorization
// code is ignored; it exists to satisfy the OAuth-shaped adapter contract.
func (c *Client) Authenticate(_ context.Context, _ string) (string, error) {
	conn, err := imapclient.DialTLS(c.cfg.Host, &tls.Config{})
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", c.cfg.Host, err)
	}
	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("imap login: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Logout()
	}
	c.conn = conn
	c.processed = make(map[string]struct{})
	c.mu.Unlock()

	return c.cfg.Username, nil
}

// IsAuthenticated reports whether a logged-in connection exists.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Identity returns the configured account address once authenticated.
func (c *Client) Identity(_ context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.cfg.Username
}

// ListCandidates returns uids of recent keyword-matching messages not yet
// processed this session.
func (c *Client) ListCandidates(_ context.Context, max int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, err := c.scanRecentLocked()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, max)
	for _, ref := range refs {
		if int64(len(ids)) >= max {
			break
		}
		if _, seen := c.processed[ref.id]; seen {
			continue
		}
		if !mailbox.MatchesAnyKeyword(ref.subject, c.cfg.Keywords) {
			continue
		}
		ids = append(ids, ref.id)
	}
	return ids, nil
}

// FetchAndDecode retrieves one message body. The uid is marked processed
// before the fetch.
func (c *Client) FetchAndDecode(_ context.Context, id string) (model.EmailMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return model.EmailMessage{}, common.ErrNotAuthenticated
	}
	c.processed[id] = struct{}{}

	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return model.EmailMessage{}, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	if _, err := c.conn.Select(c.cfg.Folder, true); err != nil {
		return model.EmailMessage{}, fmt.Errorf("%w: select %s: %v", common.ErrProviderUnavailable, c.cfg.Folder, err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqset, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}
	if err := <-done; err != nil {
		return model.EmailMessage{}, fmt.Errorf("%w: fetch %s: %v", common.ErrProviderUnavailable, id, err)
	}
	if msg == nil {
		return model.EmailMessage{}, fmt.Errorf("message %s not found", id)
	}

	out := model.EmailMessage{ID: id}
	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		out.Date = msg.Envelope.Date.UTC()
		if len(msg.Envelope.From) > 0 {
			out.Sender = msg.Envelope.From[0].Address()
		}
	}
	out.Body = mailbox.Truncate(strings.TrimSpace(readBody(msg.GetBody(section))), c.cfg.MaxBodyChars)

	return out, nil
}

// SeedProcessed marks the most recent keyword-matching messages as already
// processed.
func (c *Client) SeedProcessed(_ context.Context, max int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	refs, err := c.scanRecentLocked()
	if err != nil {
		slog.Warn("Failed to seed processed-message set", "error", err)
		return 0
	}

	seeded := 0
	for _, ref := range refs {
		if int64(seeded) >= max {
			break
		}
		if !mailbox.MatchesAnyKeyword(ref.subject, c.cfg.Keywords) {
			continue
		}
		if _, seen := c.processed[ref.id]; !seen {
			c.processed[ref.id] = struct{}{}
			seeded++
		}
	}
	return seeded
}

// ProcessedCount returns the size of the session's processed-message set.
func (c *Client) ProcessedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processed)
}

type messageRef struct {
	id      string
	subject string
}

// scanRecentLocked lists recent message envelopes, newest first. Caller
// holds c.mu.
func (c *Client) scanRecentLocked() ([]messageRef, error) {
	if c.conn == nil {
		return nil, common.ErrNotAuthenticated
	}

	if _, err := c.conn.Select(c.cfg.Folder, true); err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", common.ErrProviderUnavailable, c.cfg.Folder, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().AddDate(0, 0, -c.cfg.LookbackDays)

	uids, err := c.conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", common.ErrProviderUnavailable, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// Newest messages have the highest uids; inspect only the tail.
	if len(uids) > envelopeScanCap {
		uids = uids[len(uids)-envelopeScanCap:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.conn.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	refs := make([]messageRef, 0, len(uids))
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		refs = append(refs, messageRef{
			id:      strconv.FormatUint(uint64(msg.Uid), 10),
			subject: msg.Envelope.Subject,
		})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch envelopes: %v", common.ErrProviderUnavailable, err)
	}

	// Newest first.
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
	return refs, nil
}

// readBody extracts a plain-text body from a raw RFC 822 message, falling
// back to stripped HTML.
func readBody(r io.Reader) string {
	if r == nil {
		return ""
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return ""
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		switch {
		case strings.EqualFold(ct, "text/plain") && plain == "":
			b, _ := io.ReadAll(p.Body)
			plain = string(b)
		case strings.EqualFold(ct, "text/html") && html == "":
			b, _ := io.ReadAll(p.Body)
			html = string(b)
		}
	}

	if plain != "" {
		return plain
	}
	return mailbox.HTMLToText(html)
}
