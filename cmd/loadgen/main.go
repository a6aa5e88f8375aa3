package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/loadgen"
)

// Default configuration constants.
const (
	defaultAnnotators  = 8
	defaultNumTasks    = 200
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:8080", "Base URL of the service")
		annotators = flag.Int("annotators", defaultAnnotators, "Number of synthetic annotators")
		numTasks   = flag.Int("tasks", defaultNumTasks, "Number of tasks to seed")
		categories = flag.String("categories", "Cat,Dog,Bird", "Comma-separated options for every task")
		bounty     = flag.Float64("bounty", 0, "Bounty per task; 0 uses the server default")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile    = flag.String("log", "", "Log file for test output (default: loadgen_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	// Setup logging
	if err := loadgen.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &loadgen.Config{
		BaseURL:    *baseURL,
		Annotators: *annotators,
		NumTasks:   *numTasks,
		Categories: *categories,
		Bounty:     *bounty,
		Timeout:    *timeout,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the test
	if err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load test failed: " + err.Error() + "\n")
		return
	}
}
