// overseer - league match tracking and reporting for game servers
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/allejo/leagueoverseer/internal/config"
	"github.com/allejo/leagueoverseer/internal/host"
	"github.com/allejo/leagueoverseer/internal/league"
	"github.com/allejo/leagueoverseer/internal/overseer"
	"github.com/allejo/leagueoverseer/internal/recording"
	"github.com/allejo/leagueoverseer/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/overseer/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "matches":
		cmdMatches(os.Args[2:])
	case "version":
		fmt.Printf("overseer %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: overseer <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init                 Write a starter config (prompts for the feed secret)")
	fmt.Println("  serve                Attach to the game server and track matches")
	fmt.Println("  matches [--recent N] Show archived matches (default: 20)")
	fmt.Println("  version              Show version")
	fmt.Println("  help                 Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/overseer/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sudo overseer init")
	fmt.Println("  overseer serve --config /etc/overseer/config.yml")
	fmt.Println("  overseer matches --recent 50")
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
	return ""
}

// cmdInit writes a starter configuration
func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config file")
	feedURL := fs.String("feed-url", "ws://localhost:5155/feed", "game server feed endpoint")
	reportURL := fs.String("report-url", "", "league report endpoint")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		log.Fatalf("Config file already exists at %s, refusing to overwrite.", *configPath)
	}

	fmt.Print("Feed secret (shared with the game server): ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("Failed to read secret: %v", err)
	}
	if len(secret) == 0 {
		log.Fatalf("A feed secret is required.")
	}

	cfg := &config.Config{}
	cfg.Host.FeedURL = *feedURL
	cfg.Host.FeedSecret = strings.TrimSpace(string(secret))
	cfg.League.ReportURL = *reportURL

	if err := cfg.Save(*configPath); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("Config written to %s\n", *configPath)
	if *reportURL == "" {
		fmt.Println("No report URL set; match reporting is disabled until league.report_url is configured.")
	}
}

// cmdServe attaches to the game server feed and runs until signaled
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := resolveConfigPath(*configPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Overseer %s starting...", version)

	archive, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer archive.Close()
	log.Printf("Match archive at %s", cfg.Database.Path)

	recorder, err := recording.NewRecorder(cfg.Recording.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize recording directory: %v", err)
	}
	if recorder.Enabled() {
		log.Printf("Recording matches to %s", cfg.Recording.Dir)
	}

	transport := league.NewHTTPTransport(cfg.League.ReportURL, cfg.League.QueryURL, cfg.League.RequestTimeout)
	queue := league.NewQueue(transport, func(err error) {
		// the queue and transport disagree on ordering; nothing after
		// this point can be trusted
		log.Fatalf("League queue desynchronized: %v", err)
	})
	transport.Start(queue)

	mottos := league.NewMottoCache(queue)
	reporter := league.NewReporter(league.ReporterConfig{
		Enabled:       cfg.ReportingEnabled(),
		ServerAddress: cfg.Host.ServerAddress,
		Rotational:    cfg.League.Rotational,
	}, queue, nil)
	reporter.SetArchive(archive)
	queue.Register(league.JobMatchReport, reporter)
	queue.Register(league.JobTeamQuery, mottos)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens := host.NewTokenService(cfg.Host.FeedSecret, cfg.Host.TokenDuration)

	feedErr := make(chan error, 1)
	go runFeed(ctx, cfg, cfgPath, tokens, reporter, mottos, archive, recorder, queue, feedErr)

	// Team identity resolution is independent of match reporting
	if cfg.League.QueryURL != "" {
		if err := mottos.BulkRefresh(); err != nil {
			log.Printf("Initial team name dump failed: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-feedErr:
		log.Fatalf("Feed error: %v", err)
	}

	cancel()
	transport.Close()
	queue.Drain()
	log.Println("Shutdown complete")
}

// runFeed dials the game server feed and reconnects with backoff. The
// overseer is rebuilt per connection so a reconnect starts from a clean
// idle state.
func runFeed(ctx context.Context, cfg *config.Config, cfgPath string, tokens *host.TokenService,
	reporter *league.Reporter, mottos *league.MottoCache, archive *storage.Archive,
	recorder *recording.Recorder, queue *league.Queue, feedErr chan<- error) {

	backoff := time.Second
	for {
		token, err := tokens.GenerateToken(cfg.Host.ServerAddress)
		if err != nil {
			feedErr <- fmt.Errorf("signing feed token: %w", err)
			return
		}

		dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
		feed, err := host.Dial(dialCtx, cfg.Host.FeedURL, token)
		dialCancel()
		if err != nil {
			log.Printf("Feed connection failed: %v (retrying in %v)", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		log.Printf("Attached to game server feed at %s", cfg.Host.FeedURL)

		// the reporter's notifications reach players through this feed
		reporter.SetNotifier(feed)

		o := overseer.New(cfg, cfgPath, feed, reporter, mottos, archive, recorder, nil)
		o.Run(ctx, feed.Events())
		feed.Close()

		select {
		case <-ctx.Done():
			return
		default:
			log.Printf("Feed connection lost, reconnecting...")
		}
	}
}

// cmdMatches lists archived matches
func cmdMatches(args []string) {
	fs := flag.NewFlagSet("matches", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	recent := fs.Int("recent", 20, "number of matches to show")
	fs.Parse(args)

	cfg, err := config.Load(resolveConfigPath(*configPath))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	archive, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer archive.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	matches, err := archive.RecentMatches(ctx, *recent)
	if err != nil {
		log.Fatalf("Failed to list matches: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tKIND\tRESULT\tDURATION\tREPORTED")
	for _, m := range matches {
		result := make([]string, 0, len(m.Sides))
		for _, s := range m.Sides {
			label := s.TeamName
			if label == "" {
				label = string(s.Side)
			}
			result = append(result, fmt.Sprintf("%s %d", label, s.Score))
		}
		status := strings.Join(result, " - ")
		if m.Canceled {
			status = "canceled: " + m.CancelReason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d:%02d\t%v\n",
			m.StartedAt.Format("2006-01-02 15:04"), m.Kind, status,
			m.Duration/60, m.Duration%60, m.Reported)
	}
	w.Flush()
}
