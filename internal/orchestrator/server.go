package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DoyleJ11/arena-harness/internal/config"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

func availabilityURLs(restURL string) []string {
	root, _, _ := strings.Cut(restURL, "/api")
	out := []string{restURL, restURL + "/health", restURL + "/status"}
	if root != restURL && root != "" {
		out = append(out, root)
	}
	return out
}

type StatusReport struct {
	Mock          bool
	Endpoint      types.Endpoint
	RESTReachable bool
	RESTURL       string // the variant that answered
	WSReachable   bool
}

// Status re-probes the configured REST variants and WebSocket URL.
func (o *Orchestrator) Status(ctx context.Context) StatusReport {
	ep := o.Endpoint()
	report := StatusReport{Mock: o.MockMode(), Endpoint: ep}

	for _, u := range availabilityURLs(ep.RESTURL) {
		if o.prober.REST(ctx, u, o.cfg.RequestTimeout).OK() {
			report.RESTReachable = true
			report.RESTURL = u
			break
		}
	}
	report.WSReachable = o.prober.WebSocket(ctx, ep.WSURL, o.cfg.ProbeTimeout).OK()
	return report
}

// fetchServerInfo is best effort; failures are logged and ignored.
func (o *Orchestrator) fetchServerInfo(ctx context.Context) {
	u := o.Endpoint().RESTURL + "/server/info"
	o.log.Log("fetching server info from "+u, false)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		o.log.Log("server info: "+err.Error(), true)
		return
	}
	resp, err := o.client.Do(req)
	if err != nil {
		o.log.Log("server info unavailable: "+err.Error(), true)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		o.log.Log("server info unavailable: "+resp.Status, true)
		return
	}

	var info types.ServerInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		o.log.Log("server info unreadable: "+err.Error(), true)
		return
	}
	o.mu.Lock()
	o.info = &info
	o.mu.Unlock()
	o.log.Log(fmt.Sprintf("server info: name=%q players=%d", info.Name, info.Players), false)
}

// Override is an operator-supplied configuration. Empty URLs and a zero
// player count keep the current value; Mock is always applied.
type Override struct {
	RESTURL string
	WSURL   string
	Players int
	Mock    bool
}

func (o *Orchestrator) Configure(ov Override) error {
	if ov.Players != 0 && (ov.Players < config.MinPlayers || ov.Players > config.MaxPlayers) {
		return fmt.Errorf("%w: players must be %d..%d", config.ErrInvalidConfig, config.MinPlayers, config.MaxPlayers)
	}

	ep := o.Endpoint()
	if ov.RESTURL != "" {
		ep.RESTURL = ov.RESTURL
	}
	if ov.WSURL != "" {
		ep.WSURL = ov.WSURL
	}
	o.SetEndpoint(ep)

	o.mu.Lock()
	if ov.Players != 0 {
		o.players = ov.Players
	}
	o.mock = ov.Mock
	o.mu.Unlock()
	return nil
}

// Reinitialize reconnects the pool against the current configuration
// without rescanning, so operator overrides stick.
func (o *Orchestrator) Reinitialize(ctx context.Context) (int, error) {
	if !o.MockMode() {
		if !o.checkAvailability(ctx) {
			o.log.Log("server is not reachable; switching to local mock mode", false)
			o.setMock(true)
		} else {
			o.fetchServerInfo(ctx)
		}
	}
	return o.ConnectPlayers(ctx, o.PlayerCount())
}
