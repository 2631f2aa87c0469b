package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/eringen/visitmetrics/tracker"
)

// TrackCommand reports page visits to a running server.
type TrackCommand struct {
	Endpoint    string   `long:"endpoint" description:"Server base URL" default:"http://localhost:3000"`
	Paths       []string `long:"path" description:"Visited path (repeatable)" required:"true"`
	Referrer    string   `long:"ref" description:"Document referrer"`
	SessionFile string   `long:"session-file" description:"File holding the durable session id (default: user config dir)"`

	globals *GlobalFlags
}

// Execute implements the go-flags Commander interface. All paths share one
// browsing session, so a repeated path is only sent once.
func (c *TrackCommand) Execute(args []string) error {
	sessionFile := c.SessionFile
	if sessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}
		sessionFile = filepath.Join(dir, "visitmetrics", "session")
	}

	logger := log.New("tracker")
	if c.globals.Verbose {
		logger.SetLevel(log.DEBUG)
	}

	dedup := tracker.NewMemoryDedupStore()
	t := tracker.New(
		tracker.NewFileSessionStore(sessionFile),
		dedup,
		tracker.NewHTTPSender(c.Endpoint, nil),
		tracker.WithPage(func() (string, string) { return "/", c.Referrer }),
		tracker.WithClock(func() int64 { return time.Now().UnixMilli() }),
		tracker.WithLogger(logger),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, p := range c.Paths {
		t.Track(ctx, tracker.Visit{Path: p})
		if dedup.Sent(p) {
			fmt.Printf("sent %s\n", p)
		} else {
			fmt.Printf("not sent %s\n", p)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d visits were not acknowledged", failed, len(c.Paths))
	}
	return nil
}
