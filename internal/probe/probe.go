// Package probe answers one question about one URL: does something live
// answer there within the timeout? Every failure collapses to Unreachable.
package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/arena-harness/internal/logging"
)

type Result int

const (
	Unreachable Result = iota
	Reachable
)

func (r Result) String() string {
	if r == Reachable {
		return "reachable"
	}
	return "unreachable"
}

func (r Result) OK() bool { return r == Reachable }

type Prober struct {
	client *http.Client
	log    logging.Logger
}

// Per-request deadlines come from the probe context.
func New(log logging.Logger) *Prober {
	return NewWithClient(&http.Client{}, log)
}

// NewWithClient lets tests point the prober at an httptest client. The
// prober works on a copy that never follows redirects, so a REST probe is
// exactly one GET.
func NewWithClient(client *http.Client, log logging.Logger) *Prober {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &Prober{client: &c, log: log}
}

// Probe dispatches on the URL scheme: http(s) gets a GET, ws(s) gets a
// handshake. Unknown schemes are unreachable.
func (p *Prober) Probe(ctx context.Context, rawURL string, timeout time.Duration) Result {
	u, err := url.Parse(rawURL)
	if err != nil {
		p.log.Log("probe: bad url "+rawURL+": "+err.Error(), true)
		return Unreachable
	}
	switch u.Scheme {
	case "http", "https":
		return p.REST(ctx, rawURL, timeout)
	case "ws", "wss":
		return p.WebSocket(ctx, rawURL, timeout)
	default:
		p.log.Log("probe: unsupported scheme in "+rawURL, true)
		return Unreachable
	}
}

// REST issues a single GET. Any HTTP response counts, including 4xx/5xx:
// we are testing that a server is listening, not that the route is right.
func (p *Prober) REST(ctx context.Context, rawURL string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.log.Log("probe: build request "+rawURL+": "+err.Error(), true)
		return Unreachable
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Log("probe: "+rawURL+" not available: "+err.Error(), true)
		return Unreachable
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	p.log.Log("probe: "+rawURL+" answered "+resp.Status, true)
	return Reachable
}

// WebSocket is reachable iff the opening handshake completes in time. The
// connection is torn down without a close handshake either way.
func (p *Prober) WebSocket(ctx context.Context, rawURL string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{HTTPClient: p.client})
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		p.log.Log("probe: websocket "+rawURL+" failed: "+err.Error(), true)
		return Unreachable
	}
	conn.CloseNow()

	p.log.Log("probe: websocket "+rawURL+" open", true)
	return Reachable
}
