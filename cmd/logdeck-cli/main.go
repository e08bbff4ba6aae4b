package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tinytelemetry/logdeck/internal/socketrpc"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const usage = `Usage: logdeck-cli [flags] <command> [args]

Commands:
  status                    show record counts and the active filters
  summary [time-range]      show dashboard analytics (1h, 24h, 7d, 30d)
  filter <query>            list records matching a query string
  export <query>            write matching records as CSV to stdout
  refresh                   reload records from the configured source
  backup [path]             copy the record cache to path, or into the
                            rotating backup directory when path is omitted

A query uses the dashboard's URL filter syntax, for example
  level=error&service=api-gateway&search=timeout&startDate=2024-01-15
An empty query selects the filters active on the dashboard.
`

func main() {
	var configPath string
	var socketPath string
	var showVersion bool
	var apply bool
	var scope string
	var columns string
	var limit int

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/logdeck/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to logdeck service")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&apply, "apply", false, "filter: make the query the dashboard's active filters")
	flag.StringVar(&scope, "scope", "", "summary: all or filtered (default all)")
	flag.StringVar(&columns, "columns", "", "export: comma-separated column names")
	flag.IntVar(&limit, "limit", 0, "filter: maximum records to print")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage+"\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("Logdeck CLI - Dashboard Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if limit > 0 {
		cfg.FilterLimit = limit
	}

	cmd := command{
		name:    flag.Arg(0),
		args:    flag.Args(),
		apply:   apply,
		scope:   scope,
		columns: splitColumns(columns),
	}
	if len(cmd.args) > 0 {
		cmd.args = cmd.args[1:]
	}
	if cmd.name == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := runCLI(cfg, cmd, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	args    []string
	apply   bool
	scope   string
	columns []string
}

func (c command) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

func splitColumns(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runCLI(cfg cliConfig, cmd command, w io.Writer) error {
	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to logdeck service at %s: %w\nIs the logdeck service running? Start it with: logdeck", cfg.SocketPath, err)
	}
	defer client.Close()

	return execute(client, cfg, cmd, w)
}

// execute runs one command against an open client.
func execute(client *socketrpc.Client, cfg cliConfig, cmd command, w io.Writer) error {
	switch cmd.name {
	case "status":
		res, err := client.Snapshot()
		if err != nil {
			return err
		}
		renderStatus(w, res)
	case "summary":
		timeRange := cmd.arg(0)
		if timeRange == "" {
			timeRange = cfg.TimeRange
		}
		res, err := client.Summary("", cmd.scope, timeRange)
		if err != nil {
			return err
		}
		renderSummary(w, res)
	case "filter":
		res, err := client.Filter(cmd.arg(0), cfg.FilterLimit, cmd.apply)
		if err != nil {
			return err
		}
		renderRecords(w, res)
	case "export":
		csv, err := client.Export(cmd.arg(0), cmd.columns)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, csv)
		return err
	case "refresh":
		res, err := client.Refresh()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Loaded %d records from %s (%d rejected)\n", res.Accepted, res.Source, res.Rejected)
	case "backup":
		path, err := client.BackupCache(cmd.arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Cache copied to %s\n", path)
	default:
		return fmt.Errorf("unknown command %q (run with -h for usage)", cmd.name)
	}
	return nil
}
