package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7deid/internal/config"
	"github.com/ehr/hl7deid/internal/platform/deid"
	"github.com/ehr/hl7deid/internal/platform/generator"
	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/plugin"
)

// newLogger builds the process logger: JSON by default, console output in
// development.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(w)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// engine bundles what every de-identifying command needs.
type engine struct {
	cfg      *config.Config
	logger   zerolog.Logger
	items    []*deid.ConfigItem
	registry *plugin.Registry
}

func newEngine(cmd *cobra.Command) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if path, _ := cmd.Flags().GetString("phi"); path != "" {
		cfg.PHIFieldsPath = path
	}
	if cmd.Flags().Changed("seed") {
		cfg.GeneratorSeed, _ = cmd.Flags().GetInt64("seed")
		cfg.HasGeneratorSeed = true
	}
	if !cfg.HasGeneratorSeed {
		cfg.GeneratorSeed = generator.RandomSeed()
	}

	items, err := loadItems(cfg.PHIFieldsPath)
	if err != nil {
		return nil, err
	}

	registry := plugin.NewRegistry()
	if err := generator.RegisterDefaults(registry, cfg.GeneratorSeed); err != nil {
		return nil, fmt.Errorf("register generators: %w", err)
	}

	return &engine{
		cfg:      cfg,
		logger:   newLogger(cfg, cmd.ErrOrStderr()),
		items:    items,
		registry: registry,
	}, nil
}

// loadItems reads the PHI configuration at path, or returns the built-in
// profile when path is empty.
func loadItems(path string) ([]*deid.ConfigItem, error) {
	if path == "" {
		return deid.DefaultPHIFields(), nil
	}
	return deid.LoadPHI(path)
}

func readMessages(paths []string) (hl7v2.Messages, error) {
	msgs := make(hl7v2.Messages, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		msg, err := hl7v2.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// segmentLines splits message text on any of the accepted segment
// separators.
func segmentLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")
	return strings.Split(strings.TrimRight(text, "\r"), "\r")
}
