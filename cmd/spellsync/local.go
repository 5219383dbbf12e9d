package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/spellflare/spellsync/internal/cache"
	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/logging"
	"github.com/spellflare/spellsync/internal/profile"
	"github.com/spellflare/spellsync/internal/ui"
)

// withLocal runs fn against an offline endpoint over the device's cache.
// Mutations made this way are marked pending; "serve" pushes them.
func withLocal(fn func(ep *endpoint.Endpoint) error) error {
	role, err := endpoint.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	logger := cliLogger("cli")

	store, err := cache.Open(cfg.CachePath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ep, err := endpoint.New(store, nil, &endpoint.Config{
		Role:     role,
		DeviceID: cfg.DeviceID,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := ep.Start(); err != nil {
		return err
	}
	defer ep.Stop()

	return fn(ep)
}

// cliLogger logs to stderr in verbose mode and nowhere otherwise.
func cliLogger(component string) *log.Logger {
	var out io.Writer = io.Discard
	if logging.Verbose() {
		out = os.Stderr
	}
	return logging.NewSink(out).Logger(component)
}

func parseInt(arg, what string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number", what, arg)
	}
	return n, nil
}

func yesNo(b bool) string {
	if b {
		return ui.RenderPass("yes")
	}
	return ui.RenderMuted("no")
}

// profileFields lays out s for ui.Details.
func profileFields(s profile.Syncable) []ui.Field {
	p := s.Profile
	return []ui.Field{
		{Label: "Grade", Value: strconv.Itoa(p.Grade)},
		{Label: "Current level", Value: strconv.Itoa(p.CurrentLevel())},
		{Label: "Completed", Value: fmt.Sprintf("%d this grade, %d total", p.CompletedLevels().Len(), p.TotalCompletedLevels())},
		{Label: "Coins", Value: ui.RenderAccent(strconv.Itoa(p.TotalCoins))},
		{Label: "Watch", Value: yesNo(s.IsWatchUnlocked)},
		{Label: "Modified", Value: s.LastModified.Local().Format(time.DateTime) + ui.RenderMuted(" by "+s.DeviceIdentifier)},
		{Label: "Schema", Value: strconv.Itoa(s.SchemaVersion)},
	}
}
