// Package discovery searches a fixed port x path space for a server that
// answers both REST and WebSocket.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/arena-harness/internal/logging"
	"github.com/DoyleJ11/arena-harness/internal/probe"
	"github.com/DoyleJ11/arena-harness/internal/types"
)

// WSPaths are tried, in order, under a port whose REST probe succeeded. The
// REST path itself (or "/") is appended last.
var WSPaths = []string{"/game", "/socket", "/ws"}

type Prober interface {
	REST(ctx context.Context, rawURL string, timeout time.Duration) probe.Result
	WebSocket(ctx context.Context, rawURL string, timeout time.Duration) probe.Result
}

type Scanner struct {
	prober  Prober
	log     logging.Logger
	host    string
	timeout time.Duration
}

func NewScanner(p Prober, log logging.Logger, host string, timeout time.Duration) *Scanner {
	if host == "" {
		host = "localhost"
	}
	return &Scanner{prober: p, log: log, host: host, timeout: timeout}
}

// Discover walks ports (outer) and paths (inner). The first REST hit under a
// port triggers the WebSocket variants for that port; the first joint hit is
// returned. Probes run one at a time and no URL is probed twice in a call.
// ok is false when the space is exhausted, which is a normal outcome.
func (s *Scanner) Discover(ctx context.Context, ports []int, paths []string) (ep types.Endpoint, ok bool) {
	s.log.Log("discovery: scanning for a server", false)
	tried := make(map[string]bool)

	for _, port := range ports {
		for _, path := range paths {
			if ctx.Err() != nil {
				s.log.Log("discovery: cancelled", true)
				return types.Endpoint{}, false
			}

			restURL := fmt.Sprintf("http://%s:%d%s", s.host, port, path)
			if tried[restURL] {
				continue
			}
			tried[restURL] = true

			s.log.Log("discovery: trying "+restURL, true)
			if !s.prober.REST(ctx, restURL, s.timeout).OK() {
				s.log.Log("discovery: nothing at "+restURL, true)
				continue
			}
			s.log.Log("discovery: server answered at "+restURL, false)

			for _, wsURL := range wsCandidates(s.host, port, path) {
				if tried[wsURL] {
					continue
				}
				tried[wsURL] = true

				s.log.Log("discovery: testing websocket "+wsURL, true)
				if s.prober.WebSocket(ctx, wsURL, s.timeout).OK() {
					s.log.Log("discovery: websocket available at "+wsURL, false)
					return types.Endpoint{RESTURL: restURL, WSURL: wsURL}, true
				}
			}
		}
	}

	s.log.Log("discovery: no server found", false)
	return types.Endpoint{}, false
}

func wsCandidates(host string, port int, restPath string) []string {
	base := fmt.Sprintf("ws://%s:%d", host, port)
	out := make([]string, 0, len(WSPaths)+1)
	for _, p := range WSPaths {
		out = append(out, base+p)
	}
	last := restPath
	if last == "" {
		last = "/"
	}
	return append(out, base+last)
}
