package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/arena-harness/internal/types"
)

// checkHealth stops at the first candidate that answers at all.
func (s *Session) checkHealth(ctx context.Context, restURL string) (tried int, ok bool) {
	for _, u := range healthCandidates(restURL) {
		if ctx.Err() != nil {
			return tried, false
		}
		tried++
		s.log.Log("health check at "+u, true)
		if s.opts.Prober.REST(ctx, u, s.opts.RequestTimeout).OK() {
			s.log.Log("server reachable via "+u, true)
			return tried, true
		}
	}
	return tried, false
}

// register posts to each registration candidate in turn. Only a 2xx counts.
func (s *Session) register(ctx context.Context, restURL string) (string, error) {
	body, err := json.Marshal(types.Registration{
		Username:    s.DisplayName,
		PlayerClass: s.Class,
		Team:        s.Team,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	var lastErr error
	for _, u := range registrationCandidates(restURL) {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", ErrRegistrationFailed, ctx.Err())
		}
		s.log.Log("registering "+s.DisplayName+" at "+u, true)
		id, err := s.postRegistration(ctx, u, body)
		if err != nil {
			s.log.Log(fmt.Sprintf("registration at %s failed: %v", u, err), true)
			lastErr = err
			continue
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: %v", ErrRegistrationFailed, lastErr)
}

func (s *Session) postRegistration(ctx context.Context, u string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("status %s", resp.Status)
	}
	return s.playerIDFrom(resp.Body), nil
}

// playerIDFrom takes playerId, then id, then a positional default. Ids may
// be strings or numbers.
func (s *Session) playerIDFrom(r io.Reader) string {
	dec := json.NewDecoder(io.LimitReader(r, 64<<10))
	dec.UseNumber()
	var reply map[string]any
	if err := dec.Decode(&reply); err == nil {
		for _, key := range []string{"playerId", "id"} {
			if v, ok := reply[key]; ok && v != nil {
				if id := fmt.Sprint(v); id != "" {
					return id
				}
			}
		}
	}
	return fmt.Sprintf("player_%d", s.ID)
}

// dialSocket walks the socket candidates in order, one attempt at a time.
// Each attempt gets its own cancel token, fired by the attempt timeout or
// by ctx. On success that token becomes the connection's lifetime context.
func (s *Session) dialSocket(ctx context.Context, ep types.Endpoint, pid string) (*websocket.Conn, context.Context, context.CancelFunc, int, error) {
	candidates := socketCandidates(ep.RESTURL, ep.WSURL, pid)
	tried := 0
	for _, u := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, tried, err
		}
		tried++
		s.log.Log("connecting websocket at "+u, true)

		conn, connCtx, cancel, err := s.dialOnce(ctx, u)
		if err != nil {
			s.log.Log(fmt.Sprintf("websocket %s failed for %s: %v", u, s.DisplayName, err), true)
			continue
		}
		s.log.Log(fmt.Sprintf("websocket established for %s at %s", s.DisplayName, u), false)
		return conn, connCtx, cancel, tried, nil
	}
	return nil, nil, nil, tried, ErrSocketUnreachable
}

func (s *Session) dialOnce(ctx context.Context, u string) (*websocket.Conn, context.Context, context.CancelFunc, error) {
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopOuter := context.AfterFunc(ctx, cancel)
	timer := time.AfterFunc(s.opts.SocketTimeout, cancel)

	conn, _, err := websocket.Dial(connCtx, u, &websocket.DialOptions{HTTPClient: s.opts.Client})
	timer.Stop()
	stopOuter()

	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	if connCtx.Err() != nil {
		// Timed out in the same instant the handshake finished.
		conn.CloseNow()
		return nil, nil, nil, fmt.Errorf("dial %s: %w", u, context.DeadlineExceeded)
	}
	return conn, connCtx, cancel, nil
}
