// telly TUI - A terminal client for streaming question answering.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/telly-tui/internal/auth"
	"github.com/jeranaias/telly-tui/internal/backend"
	"github.com/jeranaias/telly-tui/internal/cache"
	"github.com/jeranaias/telly-tui/internal/chat"
	"github.com/jeranaias/telly-tui/internal/config"
	"github.com/jeranaias/telly-tui/internal/idle"
	"github.com/jeranaias/telly-tui/internal/ui"
	"github.com/jeranaias/telly-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Printf("telly %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "telly requires an interactive terminal")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("prepare config dir: %w", err)
	}

	// The alternate screen owns stdout, so the standard logger goes to a file.
	closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()
	log.Printf("telly %s starting", Version)

	credPath := cfg.Session.CredentialsPath
	if credPath == "" {
		if credPath, err = auth.DefaultPath(); err != nil {
			return fmt.Errorf("resolve credentials path: %w", err)
		}
	}
	authSvc := auth.New(credPath)

	client := backend.NewClient(cfg.Backend.URL, authSvc).
		WithTimeout(cfg.RequestTimeout())

	var store *cache.Store
	if cfg.Session.CachePath != "" {
		store = cache.New(cfg.Session.CachePath)
	} else if store, err = cache.Default(); err != nil {
		return fmt.Errorf("init session cache: %w", err)
	}

	provider := chat.NewProvider(client, store, authSvc)

	idler := idle.NewManager(idle.Config{
		Timeout:       cfg.InactivityTimeout(),
		WarningBefore: cfg.InactivityWarning(),
	})

	revoked, stopWatch, err := authSvc.WatchRevocation()
	if err != nil {
		// The watcher is best effort; log and keep running without it.
		log.Printf("credential watch unavailable: %v", err)
		revoked = nil
	} else {
		defer stopWatch()
	}

	theme := styles.NewTheme(cfg.UI.Theme)
	m := ui.New(provider, client, authSvc, idler, theme, revoked)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// setupLogging redirects the standard logger to ~/.telly/telly.log.
func setupLogging() (func(), error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("resolve log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "telly.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	return func() { _ = f.Close() }, nil
}
