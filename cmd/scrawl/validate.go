package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/scrawl/internal/common"
)

// cmdValidate loads the config and reports all warnings and errors
// without crawling.
func cmdValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	config, err := common.LoadFromFiles(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result := config.Validate()
	for _, w := range result.Warnings {
		fmt.Printf("[WARN] %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("[ERROR] %s\n", e)
	}

	if result.Valid {
		fmt.Println("Config is valid")
		return 0
	}
	return 1
}

// cmdListSites prints the configured site keys.
func cmdListSites(args []string) int {
	fs := flag.NewFlagSet("list-sites", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	config, err := common.LoadFromFiles(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, key := range config.SiteKeys() {
		fmt.Println(key)
	}
	return 0
}
