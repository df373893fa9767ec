package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/schema"
)

// maxDocumentBytes bounds a document read from the relay.
const maxDocumentBytes = 32 << 20

// WSConfig configures a relay client.
type WSConfig struct {
	// BaseURL of the relay, for example "http://10.0.0.5:8787".
	BaseURL string

	// Tenant names the shared document. Devices of one restaurant use the
	// same tenant.
	Tenant string

	// HTTPClient is used for publishing (default: 10s timeout).
	HTTPClient *http.Client

	// MinBackoff and MaxBackoff bound the reconnect delay of subscriptions
	// (defaults: 500ms and 30s).
	MinBackoff time.Duration
	MaxBackoff time.Duration

	Logger *zap.Logger
}

// WSClient is a Transport backed by the relay server.
type WSClient struct {
	base   *url.URL
	tenant string
	http   *http.Client
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	subs subscriberSet
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWSClient validates cfg and returns a client. No connection is made
// until Publish or Subscribe.
func NewWSClient(cfg WSConfig) (*WSClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid relay URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.Tenant) == "" {
		return nil, errors.New("relay tenant is required")
	}

	c := &WSClient{
		base:       base,
		tenant:     cfg.Tenant,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("relay-client").With(zap.String("tenant", cfg.Tenant))
	if c.minBackoff <= 0 {
		c.minBackoff = 500 * time.Millisecond
	}
	if c.maxBackoff < c.minBackoff {
		c.maxBackoff = 30 * time.Second
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

func (c *WSClient) documentURL() string {
	return c.base.String() + "/api/documents/" + url.PathEscape(c.tenant)
}

func (c *WSClient) socketURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + "/ws/" + url.PathEscape(c.tenant)
}

// Publish uploads doc with PUT. Network failures and 5xx responses wrap
// ErrTransportUnreachable; 4xx responses wrap ErrRejected.
func (c *WSClient) Publish(ctx context.Context, doc *schema.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrRejected)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.documentURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: relay returned %s", ErrTransportUnreachable, resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: relay returned %s", ErrRejected, resp.Status)
	}
	return nil
}

// Subscribe keeps a websocket open to the relay, reconnecting with capped
// exponential backoff until the subscription ends.
func (c *WSClient) Subscribe(ctx context.Context, fn func(*schema.Document)) (func(), error) {
	if c.ctx.Err() != nil {
		return nil, fmt.Errorf("%w: transport closed", ErrTransportUnreachable)
	}

	sub := newSubscriber(fn)
	if !c.subs.add(sub) {
		sub.stop()
		return nil, fmt.Errorf("%w: transport closed", ErrTransportUnreachable)
	}

	subCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.subs.remove(sub)
		c.listen(subCtx, sub)
	}()

	go func() {
		select {
		case <-subCtx.Done():
		case <-sub.done:
			cancel()
		}
	}()

	return func() {
		stop()
		cancel()
		c.subs.remove(sub)
	}, nil
}

func (c *WSClient) listen(ctx context.Context, sub *subscriber) {
	backoff := c.minBackoff
	for {
		connected, err := c.readSocket(ctx, sub)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = c.minBackoff
		}
		c.logger.Debug("relay connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// readSocket dials the relay and feeds documents to sub until the connection
// fails. It reports whether a connection was established.
func (c *WSClient) readSocket(ctx context.Context, sub *subscriber) (bool, error) {
	conn, _, err := websocket.Dial(ctx, c.socketURL(), nil)
	if err != nil {
		return false, fmt.Errorf("failed to dial relay: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxDocumentBytes)

	c.logger.Debug("relay connected")
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return true, err
		}
		doc, err := schema.DecodeDocument(raw)
		if err != nil {
			c.logger.Warn("ignoring malformed document", zap.Error(err))
			continue
		}
		sub.offer(doc)
	}
}

// Close ends all subscriptions and waits for their connections to close.
func (c *WSClient) Close() error {
	c.cancel()
	c.subs.closeAll()
	c.wg.Wait()
	return nil
}
