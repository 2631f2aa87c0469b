package main

import (
	"errors"
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// version is set at build time via ldflags.
var version = "dev"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Verbose bool `short:"v" long:"verbose" description:"Enable debug logging"`
}

// VersionCommand prints the build version.
type VersionCommand struct{}

// Execute implements the go-flags Commander interface.
func (c *VersionCommand) Execute(args []string) error {
	fmt.Printf("visitmetrics %s\n", version)
	return nil
}

func buildParser() *goflags.Parser {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "visitmetrics"
	parser.LongDescription = "Privacy-conscious page-visit telemetry: ingestion server, tracker client, and daily series."

	parser.AddCommand("serve", "Run the HTTP server", "Run the ingestion and dashboard HTTP server. Configuration is read from the environment and an optional .env file.", &ServeCommand{globals: &globals})
	parser.AddCommand("track", "Report a page visit", "Report a page visit to a running server, once per path per session.", &TrackCommand{globals: &globals})
	parser.AddCommand("series", "Print the daily visit series", "Print the gap-filled daily visit series as JSON, reading the configured event store directly.", &SeriesCommand{globals: &globals})
	parser.AddCommand("version", "Print the version", "Print the visitmetrics version.", &VersionCommand{})

	return parser
}

func main() {
	if _, err := buildParser().Parse(); err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
