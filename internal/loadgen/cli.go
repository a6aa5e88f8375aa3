package loadgen

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "loadgen_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the load generation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Crowd Labeling Load Tool
========================

A concurrent tool for exercising the labeling engine end to end:
seeding tasks, running synthetic annotators, resolving conflicts and
settling payroll, then checking the books balance.

Usage:
  go run cmd/loadgen/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -annotators int
        Number of synthetic annotators (default 8)
  -tasks int
        Number of tasks to seed (default 200)
  -categories string
        Comma-separated options for every task (default "Cat,Dog,Bird")
  -bounty float
        Bounty per task; 0 uses the server default
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file for test output (default: loadgen_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run cmd/loadgen/main.go

  # Heavier run against a remote host
  go run cmd/loadgen/main.go -tasks 5000 -annotators 32 -url http://localhost:8080
`)
}
