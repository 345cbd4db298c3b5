package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/scrawl/internal/common"
)

func printUsage() {
	fmt.Println("scrawl - documentation crawler")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  crawl       Start a fresh crawl")
	fmt.Println("  resume      Resume an interrupted crawl")
	fmt.Println("  validate    Validate configuration file")
	fmt.Println("  list-sites  List configured sites")
	fmt.Println("  version     Show version information")
	fmt.Println()
	fmt.Println("Use 'scrawl <command> -h' for more information about a command.")
}

func main() {
	common.LoadVersionFromFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var exitCode int
	switch command := os.Args[1]; command {
	case "crawl":
		exitCode = cmdCrawl(os.Args[2:], false)
	case "resume":
		exitCode = cmdCrawl(os.Args[2:], true)
	case "validate":
		exitCode = cmdValidate(os.Args[2:])
	case "list-sites":
		exitCode = cmdListSites(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("scrawl v%s\n", common.GetFullVersion())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		exitCode = 1
	}

	os.Exit(exitCode)
}
