package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/term"
)

// setupLog sends log output to stderr and appends a copy to bilivoice.log in
// the user log dir. Output that is not a terminal is written as JSON.
func setupLog() (func() error, error) {
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.DateTime)
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		log.SetFormatter(log.JSONFormatter)
	}

	scope := gap.NewScope(gap.User, appName)
	logFile, err := scope.LogPath(appName + ".log")
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f.Close, nil
}
