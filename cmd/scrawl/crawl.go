package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/services/crawler"
	"github.com/ternarybob/scrawl/internal/services/orchestrator"
	"github.com/ternarybob/scrawl/internal/storage/badger"
)

// cmdCrawl implements both the crawl and resume subcommands; resume
// reopens existing site state instead of destroying it.
func cmdCrawl(args []string, resume bool) int {
	name := "crawl"
	if resume {
		name = "resume"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to config file")
	siteKey := fs.String("site", "", "Site key from config")
	siteKeys := fs.String("sites", "", "Comma-separated site keys")
	allSites := fs.Bool("all-sites", false, "Crawl all configured sites")
	logLevel := fs.String("loglevel", "", "Log level (trace, debug, info, warn, error)")
	incremental := fs.Bool("incremental", false, "Skip rewriting unchanged pages")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	config, err := common.LoadFromFiles(*configPath)
	if err != nil {
		common.GetLogger().Error().Err(err).Msg("Failed to load configuration")
		return 1
	}
	if *logLevel != "" {
		config.Logging.Level = *logLevel
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	if logFile := common.GetLogFilePath(logger); logFile != "" {
		logger.Debug().Str("log_file", logFile).Str("version", common.GetFullVersion()).Msg("File logging enabled")
	}

	var keys []string
	switch {
	case *allSites:
		keys = config.SiteKeys()
	case *siteKeys != "":
		for _, k := range strings.Split(*siteKeys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	case *siteKey != "":
		keys = []string{*siteKey}
	default:
		fmt.Fprintln(os.Stderr, "Error: -site, -sites, or -all-sites required")
		return 1
	}

	if resume && len(keys) != 1 {
		fmt.Fprintln(os.Stderr, "Error: -site required for resume")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, err := badger.NewHistoryStorage(logger, config.Output.StateDir)
	if err != nil {
		logger.Warn().Err(err).Msg("Crawl history unavailable, continuing without it")
		history = nil
	} else {
		defer history.Close()
	}

	logger.Info().Int("sites", len(keys)).Bool("resume", resume).Msg("Starting crawl")

	orch := orchestrator.NewService(config, history, logger)
	results := orch.Run(ctx, keys, crawler.Options{Resume: resume, Incremental: *incremental})

	exitCode := 0
	for _, res := range results {
		if res.Success {
			fmt.Printf("[OK] %s: %d pages (%d ms)\n", res.SiteKey, res.PagesProcessed, res.Duration.Milliseconds())
		} else {
			fmt.Fprintf(os.Stderr, "[FAIL] %s: %s\n", res.SiteKey, res.Error)
			exitCode = 1
		}
	}
	return exitCode
}
