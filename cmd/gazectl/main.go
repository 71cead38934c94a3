// gazectl is the control CLI for gazed.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gazeinput/internal/config"
	"gazeinput/internal/journal"
	"gazeinput/internal/uitree"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "status":
		err = cmdStatus(os.Stdout)
	case "stats":
		err = cmdStats(os.Stdout, flag.Args()[1:])
	case "history":
		err = cmdHistory(os.Stdout, flag.Args()[1:])
	case "sessions":
		err = cmdSessions(os.Stdout, flag.Args()[1:])
	case "init-config":
		err = cmdInitConfig(os.Stdout, flag.Args()[1:])
	case "check-layout":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: gazectl check-layout <layout.yaml>")
			os.Exit(1)
		}
		err = cmdCheckLayout(os.Stdout, flag.Arg(1))
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `gazectl - Control utility for gazed

Usage: gazectl [options] <command> [args]

Commands:
  status                  Query the running daemon's health endpoint
  stats [-since 1h]       Show per element dwell statistics from the journal
  history [-element name] [-kind state|invoke|eyes_off] [-limit n]
                          Print journaled gaze events, newest first
  sessions [-limit n]     List daemon sessions
  init-config [path]      Write the default configuration (.toml, .yaml or .json)
  check-layout <file>     Validate an element layout file
  help                    Show this help message

Options:
  -config <path>  Path to config file (default: platform config dir)`)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openJournal(cfg *config.Config) (*journal.Journal, error) {
	if _, err := os.Stat(cfg.Journal.Path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no journal at %s", cfg.Journal.Path)
	}
	return journal.Open(cfg.Journal.Path, journal.Options{
		BusyTimeout: time.Duration(cfg.Journal.BusyTimeoutMs) * time.Millisecond,
	})
}

func cmdStatus(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "=== gazed Status ===")
	fmt.Fprintln(w)

	if !cfg.Server.Enabled {
		fmt.Fprintln(w, "Server: disabled in configuration")
	} else {
		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get("http://" + cfg.Server.Listen + "/health")
		if err != nil {
			fmt.Fprintf(w, "Daemon Status: NOT RUNNING (%s)\n", cfg.Server.Listen)
		} else {
			defer resp.Body.Close()
			var health struct {
				Status  string   `json:"status"`
				Ready   bool     `json:"ready"`
				Uptime  string   `json:"uptime"`
				Failing []string `json:"failing"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("decode health: %w", err)
			}
			fmt.Fprintf(w, "Daemon Status: %s (ready: %v, uptime: %s)\n",
				strings.ToUpper(health.Status), health.Ready, health.Uptime)
			if len(health.Failing) > 0 {
				fmt.Fprintf(w, "Failing checks: %s\n", strings.Join(health.Failing, ", "))
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Journal:")
	if !cfg.Journal.Enabled {
		fmt.Fprintln(w, "  Disabled")
		return nil
	}
	info, err := os.Stat(cfg.Journal.Path)
	if err != nil {
		fmt.Fprintln(w, "  No journal found")
		return nil
	}
	fmt.Fprintf(w, "  Path: %s\n", cfg.Journal.Path)
	fmt.Fprintf(w, "  Size: %s\n", formatBytes(info.Size()))
	return nil
}

func cmdStats(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	since := fs.Duration("since", 0, "only count events newer than this")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	var from time.Time
	if *since > 0 {
		from = time.Now().Add(-*since)
	}
	sum, err := j.Stats(from)
	if err != nil {
		return err
	}
	printStats(w, sum)
	return nil
}

func printStats(w io.Writer, sum *journal.Summary) {
	fmt.Fprintf(w, "Sessions: %d  Events: %d  Eyes off: %d\n\n", sum.Sessions, sum.Events, sum.EyesOff)
	if len(sum.Elements) == 0 {
		fmt.Fprintln(w, "No element activity recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ELEMENT\tSTATES\tINVOKED\tHANDLED\tLONGEST DWELL\tLAST SEEN")
	for _, e := range sum.Elements {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			e.Element, e.StateChanges, e.Invocations, e.Handled,
			e.LongestDwell.Round(time.Millisecond), e.LastSeen.Format(time.DateTime))
	}
	tw.Flush()
}

func cmdHistory(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	element := fs.String("element", "", "only events of this element path")
	kind := fs.String("kind", "", "only events of this kind")
	limit := fs.Int("limit", 50, "maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.History(journal.HistoryQuery{
		Element: *element,
		Kind:    journal.Kind(*kind),
		Limit:   *limit,
	})
	if err != nil {
		return err
	}
	printHistory(w, events)
	return nil
}

func printHistory(w io.Writer, events []journal.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tELEMENT\tSTATE\tELAPSED")
	for _, e := range events {
		element := e.Element
		if element == "" {
			element = "-"
		}
		state := e.State
		if e.Handled {
			state += " (handled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Format("15:04:05.000"), e.Kind, element, state, e.Elapsed.Round(time.Millisecond))
	}
	tw.Flush()
}

func cmdSessions(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum number of sessions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	sessions, err := j.Sessions(*limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHOST\tSTARTED\tDURATION")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Host, s.StartedAt.Format(time.DateTime), duration)
	}
	return tw.Flush()
}

func cmdInitConfig(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := config.ConfigPath()
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote default configuration to %s\n", path)
	return nil
}

func cmdCheckLayout(w io.Writer, path string) error {
	l, err := uitree.LoadLayoutFile(path)
	if err != nil {
		return err
	}
	var invokable int
	l.Root.Walk(func(n *uitree.Node) bool {
		if n.CanInvoke() {
			invokable++
		}
		return true
	})
	fmt.Fprintf(w, "%s: %d nodes, %d invokable, root %q\n",
		filepath.Base(path), l.Nodes(), invokable, l.Root.Name)
	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
