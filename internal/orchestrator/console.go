package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

const helpText = `
=== COMMANDS ===
status          - check server status
chat <message>  - send a chat message from one player
shoot           - simulate a shot between two random players
players         - list players
scan            - search for the server again
start           - start the automatic simulation
stop            - stop the automatic simulation
config          - change settings
add             - add one more player
reconnect <id>  - reconnect a player
exit            - disconnect everyone and quit
help            - show this list
`

// Console is the line-oriented operator interface. One command per line.
type Console struct {
	o     *Orchestrator
	out   io.Writer
	lines chan string

	done       chan struct{} // closed when Run returns
	stopOnce   sync.Once
	readerDone chan struct{} // closed when the reader goroutine exits
}

// NewConsole starts reading in. Reading stops at EOF, a read error, or the
// first line read after Run has returned.
func NewConsole(o *Orchestrator, in io.Reader, out io.Writer) *Console {
	c := &Console{
		o:          o,
		out:        out,
		lines:      make(chan string),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go func() {
		defer close(c.readerDone)
		defer close(c.lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case c.lines <- sc.Text():
			case <-c.done:
				return
			}
		}
	}()
	return c
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) ShowCommands() { c.printf("%s\n", helpText) }

// Run executes commands until exit, EOF or ctx ends. exit and EOF return nil.
func (c *Console) Run(ctx context.Context) error {
	defer c.stopOnce.Do(func() { close(c.done) })
	for {
		c.printf("> ")
		line, err := c.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit := c.Execute(ctx, line); quit {
			return nil
		}
	}
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(line), nil
	}
}

func (c *Console) prompt(ctx context.Context, question string) (string, error) {
	c.printf("%s", question)
	return c.readLine(ctx)
}

// Execute runs one command line and reports whether the operator asked to
// quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "":
		// nothing

	case "status":
		c.status(ctx)

	case "chat":
		if rest == "" {
			c.printf("you need to provide a message\n")
			break
		}
		if !c.o.Chat(rest) {
			c.printf("no connected player can send chat\n")
		}

	case "shoot":
		from, to, ok := c.o.Shoot()
		if from == nil || to == nil {
			c.printf("not enough players to simulate a shot\n")
			break
		}
		if !ok {
			c.printf("%s could not shoot at %s\n", from.DisplayName, to.DisplayName)
			break
		}
		c.printf("%s shot at %s\n", from.DisplayName, to.DisplayName)

	case "players":
		c.players()

	case "scan":
		if ep, ok := c.o.Scan(ctx); ok {
			c.printf("server found: %s\n", ep)
		} else {
			c.printf("no server found; configuration unchanged\n")
		}

	case "start":
		if c.o.StartSimulation() {
			c.printf("automatic simulation started\n")
		} else {
			c.printf("simulation is already running\n")
		}

	case "stop":
		if c.o.StopSimulation() {
			c.printf("automatic simulation stopped\n")
		} else {
			c.printf("simulation is not running\n")
		}

	case "config":
		if err := c.configure(ctx); err != nil && !errors.Is(err, io.EOF) {
			c.printf("config aborted: %v\n", err)
		}

	case "add":
		s, err := c.o.AddPlayer(ctx)
		if err != nil {
			c.printf("%v\n", err)
			break
		}
		c.printf("%s added\n", s.DisplayName)

	case "reconnect":
		id, err := strconv.Atoi(rest)
		if err != nil {
			c.printf("usage: reconnect <id>\n")
			break
		}
		if err := c.o.Reconnect(ctx, id); err != nil {
			c.printf("%v\n", err)
			break
		}
		c.printf("player %d reconnected\n", id)

	case "exit", "quit":
		return true

	case "help":
		c.ShowCommands()

	default:
		c.printf("unknown command %q. Type \"help\" for the list of commands.\n", cmd)
	}
	return false
}

func (c *Console) status(ctx context.Context) {
	r := c.o.Status(ctx)
	if r.Mock {
		c.printf("running in local mock mode\n")
	}
	if r.RESTReachable {
		c.printf("REST: responding at %s\n", r.RESTURL)
	} else {
		c.printf("REST: not responding at any known endpoint under %s\n", r.Endpoint.RESTURL)
	}
	if r.WSReachable {
		c.printf("WebSocket: responding at %s\n", r.Endpoint.WSURL)
	} else {
		c.printf("WebSocket: not responding at %s\n", r.Endpoint.WSURL)
	}
}

func (c *Console) players() {
	c.printf("\n=== PLAYERS ===\n")
	for _, p := range c.o.Players() {
		connected := "no"
		if p.Connected {
			connected = "yes"
		}
		c.printf("%d: %s | class: %s | team: %s | connected: %s\n", p.ID, p.DisplayName, p.Class, p.Team, connected)
	}
}

func yes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes", "s":
		return true
	}
	return false
}

func (c *Console) configure(ctx context.Context) error {
	c.printf("\n--- Configuration ---\n")
	var ov Override
	var err error

	if ov.RESTURL, err = c.prompt(ctx, "REST URL (e.g. http://localhost:5500/api): "); err != nil {
		return err
	}
	if ov.WSURL, err = c.prompt(ctx, "WebSocket URL (e.g. ws://localhost:5500/game): "); err != nil {
		return err
	}
	count, err := c.prompt(ctx, "Number of test players (1-10): ")
	if err != nil {
		return err
	}
	if n, convErr := strconv.Atoi(count); convErr == nil {
		ov.Players = n
	}
	mock, err := c.prompt(ctx, "Enable local mock mode? (y/n): ")
	if err != nil {
		return err
	}
	ov.Mock = yes(mock)

	if err := c.o.Configure(ov); err != nil {
		c.printf("%v; keeping the previous player count\n", err)
		ov.Players = 0
		if err := c.o.Configure(ov); err != nil {
			return err
		}
	}

	ep := c.o.Endpoint()
	c.printf("\nNew settings:\nREST URL: %s\nWebSocket URL: %s\nTest players: %d\nMock mode: %v\n",
		ep.RESTURL, ep.WSURL, c.o.PlayerCount(), c.o.MockMode())

	again, err := c.prompt(ctx, "\nConnect again now? (y/n): ")
	if err != nil {
		return err
	}
	if !yes(again) {
		return nil
	}
	n, err := c.o.Reinitialize(ctx)
	if err != nil {
		return err
	}
	c.printf("%d players live\n", n)
	return nil
}
