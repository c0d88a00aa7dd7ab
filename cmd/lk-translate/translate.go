package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriscow/livekit-translate-go/internal/config"
	"github.com/chriscow/livekit-translate-go/internal/worker"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/sink"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
)

const defaultTranslateTimeout = time.Minute

var translateCmd = &cobra.Command{
	Use:   "translate TEXT...",
	Short: "Stream one translation and print relay messages as JSON lines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, _ := cmd.Flags().GetString("lang")
		provider, _ := cmd.Flags().GetString("provider")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		// stdout carries the messages only.
		logger := setupLogger(os.Stderr)

		opts := offline("stt", "synthesis")
		if provider != "" {
			opts = append(opts, config.WithOverride("translation.provider", provider))
		}
		cfg, err := loadConfig(cmd, opts...)
		if err != nil {
			return err
		}

		translator, err := newTranslator(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
		defer cancelTimeout()

		return runTranslate(ctx, cfg, translator, lang, strings.Join(args, " "), cmd.OutOrStdout(), logger)
	},
}

// runTranslate streams one translation of text into lang through the same
// driver, session and relay a room worker uses, writing every message to out.
func runTranslate(ctx context.Context, cfg *config.Config, provider llm.StreamingLLM, lang, text string, out io.Writer, logger *slog.Logger) error {
	rc, err := worker.NewLauncher(cfg, worker.Providers{}, nil, nil, logger).RoomConfig("cli", lang)
	if err != nil {
		return err
	}

	fanout := relay.NewFanout(ctx, relay.FanoutConfig{QueueSize: cfg.Sinks.QueueSize}, logger, sink.NewWriter("stdout", out))
	defer fanout.Close()

	registry := relay.NewRegistry(logger)
	s, sctx, err := registry.Begin(ctx, rc.Source.Code, rc.Target.Code)
	if err != nil {
		return err
	}
	defer registry.End(s)

	turns := translate.NormalizeTurns(
		[]llm.Message{{Role: llm.RoleUser, Content: text}},
		translate.Directive(rc.Source, rc.Target))

	chunks, err := translate.NewDriver(provider, rc.Driver, logger).Translate(sctx, turns, rc.Target.Code)
	if err != nil {
		_ = s.Fail(err)
		return err
	}

	runErr := relay.New(fanout, logger).Run(sctx, s, chunks)

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fanout.Flush(flushCtx); err != nil && !errors.Is(err, relay.ErrFanoutClosed) {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return runErr
}
