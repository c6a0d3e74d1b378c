// Package imapsource polls an IMAP mailbox for new messages, comparing
// UIDs against a high-water mark persisted in the route's Store rather
// than a dedicated state package, and emits one message per newly
// arrived envelope. Connection handling follows the reconnect-on-stale
// discipline of a single-account IMAP client: a stale connection is
// detected with a NOOP and transparently reconnected before each poll.
package imapsource

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/routecraftjs/routecraft"
)

// Options configures an IMAP mailbox source.
type Options struct {
	// Host is the IMAP server hostname. Required.
	Host string
	// Port is the IMAP server port. Default: 993.
	Port int
	// Username is the IMAP login username. Required.
	Username string
	// Password is the IMAP login password.
	Password string
	// TLS controls whether to dial with TLS. New does not default it;
	// the zero value dials without TLS.
	TLS bool
	// Folder is the mailbox to poll. Default: "INBOX".
	Folder string
	// Interval between polls. Required; New panics if zero.
	Interval time.Duration
	// StoreNamespace scopes the high-water mark key within the route's
	// Store. Default: "imapsource".
	StoreNamespace string
}

// Envelope is the summary metadata emitted for each newly seen message.
type Envelope struct {
	UID     uint32
	Date    time.Time
	From    string
	Subject string
	// Body is the decoded text/plain part of the message, or the whole
	// decoded body when the message has no multipart structure. Empty
	// if the message could not be parsed as MIME.
	Body string
}

// New returns a routecraft.Source that polls opts.Folder every
// opts.Interval, emitting an Envelope per message whose UID exceeds the
// stored high-water mark. The mark is read from and written to store
// under "<StoreNamespace>.<Host>.<Username>.<Folder>" so that multiple
// imapsource instances sharing one Context do not collide. A poll that
// fails to connect or search is logged and skipped; it never ends the
// source.
func New(opts Options, store *routecraft.Store, logger routecraft.Logger) routecraft.Source {
	if opts.Interval <= 0 {
		panic("imapsource: Interval must be positive")
	}
	if opts.Folder == "" {
		opts.Folder = "INBOX"
	}
	if opts.Port == 0 {
		opts.Port = 993
	}
	if opts.StoreNamespace == "" {
		opts.StoreNamespace = "imapsource"
	}
	if logger == nil {
		logger = routecraft.NewDiscardLogger()
	}

	c := &client{opts: opts, logger: logger}
	key := fmt.Sprintf("%s.%s.%s.%s", opts.StoreNamespace, opts.Host, opts.Username, opts.Folder)

	return routecraft.SourceFunc(func(ctx context.Context, emit routecraft.Emit) error {
		defer c.close()

		poll := func() {
			if err := c.pollOnce(ctx, store, key, emit); err != nil {
				logger.Warn("imap poll failed, skipping cycle", "host", opts.Host, "folder", opts.Folder, "error", err)
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

// client wraps a single IMAP connection with mutex-serialized access
// and lazy reconnection, mirroring the connect/ensureConnected split of
// a single-account mail client.
type client struct {
	opts   Options
	logger routecraft.Logger

	mu   sync.Mutex
	conn *imapclient.Client
}

func (c *client) pollOnce(ctx context.Context, store *routecraft.Store, key string, emit routecraft.Emit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(); err != nil {
		return err
	}

	if _, err := c.conn.Select(c.opts.Folder, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", c.opts.Folder, err)
	}

	storedUID := loadHighWaterMark(store, key)

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(storedUID + 1), Stop: 0}}},
	}
	searchData, err := c.conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("search %s: %w", c.opts.Folder, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	fetchCmd := c.conn.Fetch(uidSet, &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{}},
	})
	var envelopes []Envelope
	var highest uint32
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		env := parseEnvelope(msg)
		if env.UID > highest {
			highest = env.UID
		}
		envelopes = append(envelopes, env)
	}
	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("fetch %s: %w", c.opts.Folder, err)
	}

	if highest > storedUID {
		if err := store.Set(key, strconv.FormatUint(uint64(highest), 10)); err != nil {
			return fmt.Errorf("persist high-water mark: %w", err)
		}
	}

	// Seed silently on the first poll (storedUID == 0) rather than
	// flooding downstream steps with the whole mailbox.
	if storedUID == 0 {
		return nil
	}

	for _, env := range envelopes {
		emit(env.Body, routecraft.Headers{
			"routecraft.imap.uid":     env.UID,
			"routecraft.imap.folder":  c.opts.Folder,
			"routecraft.imap.subject": env.Subject,
			"routecraft.imap.from":    env.From,
		})
	}
	return nil
}

func loadHighWaterMark(store *routecraft.Store, key string) uint32 {
	v, ok := store.Get(key)
	if !ok {
		return 0
	}
	s, ok := v.(string)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(parsed)
}

func parseEnvelope(msg *imapclient.FetchMessageData) Envelope {
	var env Envelope
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				env.Date = data.Envelope.Date
				env.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					env.From = formatAddress(data.Envelope.From[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			if data.Literal != nil {
				raw, err := io.ReadAll(data.Literal)
				if err == nil {
					env.Body = decodeBody(raw)
				}
			}
		}
	}
	return env
}

// decodeBody parses raw as a MIME message and returns its text/plain
// part, decoded from whatever transfer encoding the part declares. For
// a non-multipart message it returns the whole decoded body. Returns
// empty on any parse failure rather than erroring the poll over one
// malformed message.
func decodeBody(raw []byte) string {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				return ""
			}
			ct, _, err := part.Header.ContentType()
			if err == nil && strings.HasPrefix(ct, "text/plain") {
				body, err := io.ReadAll(part.Body)
				if err != nil {
					return ""
				}
				return string(body)
			}
		}
	}

	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return ""
	}
	return string(body)
}

func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}

// ensureConnectedLocked checks the connection with a NOOP and
// transparently reconnects if it is stale or absent. Caller must hold
// c.mu.
func (c *client) ensureConnectedLocked() error {
	if c.conn != nil {
		if err := c.conn.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("imap connection stale, reconnecting", "host", c.opts.Host)
		_ = c.conn.Close()
		c.conn = nil
	}

	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))

	var clientOpts imapclient.Options
	if c.opts.TLS {
		clientOpts.TLSConfig = &tls.Config{ServerName: c.opts.Host}
	}

	var conn *imapclient.Client
	var err error
	if c.opts.TLS {
		conn, err = imapclient.DialTLS(addr, &clientOpts)
	} else {
		conn, err = imapclient.DialInsecure(addr, &clientOpts)
	}
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", addr, err)
	}

	if err := conn.Login(c.opts.Username, c.opts.Password).Wait(); err != nil {
		_ = conn.Close()
		return fmt.Errorf("login as %s: %w", c.opts.Username, err)
	}

	c.conn = conn
	c.logger.Info("imap connected", "host", c.opts.Host, "user", c.opts.Username)
	return nil
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
