// chanterm - a terminal client for a Slack workspace.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/jeranaias/chanterm/internal/config"
	"github.com/jeranaias/chanterm/internal/dispatch"
	"github.com/jeranaias/chanterm/internal/model"
	"github.com/jeranaias/chanterm/internal/slack"
	"github.com/jeranaias/chanterm/internal/socketmode"
	"github.com/jeranaias/chanterm/internal/store"
	"github.com/jeranaias/chanterm/internal/ui/chat"
	"github.com/jeranaias/chanterm/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Printf("chanterm %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	setupDebugLog()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chanterm needs an interactive terminal (stdout is not a TTY)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Both credentials are required up front; a client that cannot
	// authenticate has nothing useful to show.
	botToken := cfg.Workspace.BotToken
	appToken := cfg.Workspace.AppToken
	switch {
	case botToken == "":
		return errors.New("SLACK_BOT_TOKEN is not set (bot credential for the REST API, xoxb-...)")
	case !slack.ValidateBotToken(botToken):
		return errors.New("SLACK_BOT_TOKEN is malformed: expected an xoxb- token")
	case appToken == "":
		return errors.New("SLACK_APP_TOKEN is not set (app credential for the event stream, xapp-...)")
	case !slack.ValidateAppToken(appToken):
		return errors.New("SLACK_APP_TOKEN is malformed: expected an xapp- token")
	}

	client := slack.NewClient(botToken, appToken).WithMaxRetries(cfg.Gateway.MaxRetries)

	authCtx, cancelAuth := context.WithTimeout(context.Background(), 15*time.Second)
	identity, err := client.AuthTest(authCtx)
	cancelAuth()
	if err != nil {
		if errors.Is(err, slack.ErrAuthFailed) {
			return fmt.Errorf("SLACK_BOT_TOKEN was rejected by the workspace: %w", err)
		}
		return fmt.Errorf("could not reach the workspace: %w", err)
	}
	log.Printf("authenticated as %s (%s) in team %s", identity.User, identity.UserID, identity.Team)

	st := store.New()
	defer st.Close()

	d := dispatch.New(client, st, identity.UserID, dispatch.Config{
		SendTimeout:     cfg.Gateway.SendTimeout(),
		FetchTimeout:    cfg.Gateway.FetchTimeout(),
		HistoryPageSize: cfg.Gateway.HistoryPageSize,
	})

	sm := socketmode.New(client, st, socketmode.Config{
		HandshakeTimeout: cfg.Stream.HandshakeTimeout(),
		ReadIdleTimeout:  cfg.Stream.ReadIdleTimeout(),
		BackoffBase:      cfg.Stream.BackoffBase(),
		BackoffMax:       cfg.Stream.BackoffMax(),
		MaxAttempts:      cfg.Stream.MaxAttempts,
	})

	ui := chat.New(st, d, client.UserNames, identity.UserID, styles.NewTheme())
	p := tea.NewProgram(ui, tea.WithAltScreen())

	sm.OnStatus(func(status model.ConnStatus) {
		p.Send(chat.ConnStatusMsg{Status: status})
	})
	sm.OnReconnect(func() {
		// Events may have been missed while the stream was down.
		d.RefreshActive()
		d.SyncChannels()
	})
	d.OnNotice(func(text string) {
		p.Send(chat.NoticeMsg{Text: text})
	})
	d.OnUsersResolved(func() {
		p.Send(chat.NamesUpdatedMsg{})
	})

	streamCtx, stopStream := context.WithCancel(context.Background())
	restCtx, stopRest := context.WithCancel(context.Background())
	defer stopStream()
	defer stopRest()

	var streamDone, restDone sync.WaitGroup
	streamDone.Add(1)
	go func() {
		defer streamDone.Done()
		if err := sm.Run(streamCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("stream client exited: %v", err)
		}
	}()
	restDone.Add(1)
	go func() {
		defer restDone.Done()
		if err := d.Run(restCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("dispatcher exited: %v", err)
		}
	}()

	// Reload notices only: connection settings need a restart to apply.
	if path, perr := config.ConfigPath(); perr == nil {
		if w, werr := config.Watch(path, func(_ *config.Config, err error) {
			if err != nil {
				p.Send(chat.NoticeMsg{Text: "config reload: " + err.Error()})
				return
			}
			p.Send(chat.NoticeMsg{Text: "config reloaded; restart to apply connection settings"})
		}); werr == nil {
			defer w.Close()
		}
	}

	_, runErr := p.Run()

	// Ordered shutdown: the stream goes first so no new events land,
	// then in-flight REST work gets a short grace before cancellation.
	stopStream()
	waitWithTimeout(&streamDone, 3*time.Second)
	stopRest()
	waitWithTimeout(&restDone, 3*time.Second)

	return runErr
}

// waitWithTimeout joins a waitgroup but never hangs shutdown.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// setupDebugLog routes the log package to ~/.chanterm/debug.log when
// CHANTERM_DEBUG is set, and silences it otherwise so log output never
// corrupts the alternate screen.
func setupDebugLog() {
	if os.Getenv("CHANTERM_DEBUG") == "" {
		log.SetOutput(io.Discard)
		return
	}

	dir, err := config.ConfigDir()
	if err != nil {
		log.SetOutput(io.Discard)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.SetOutput(io.Discard)
		return
	}

	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}
