package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lumascope/acquire"
	"github.com/lumascope/acquire/pkg/framelog"
)

type runOptions struct {
	rows     int
	cols     int
	channels int
	bands    int
	period   time.Duration
	duration time.Duration
	frameLog string
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream continuous frames from the simulated detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.rows, "rows", 256, "frame rows")
	cmd.Flags().IntVar(&opts.cols, "cols", 256, "frame columns")
	cmd.Flags().IntVar(&opts.channels, "channels", 1, "detector channels per frame")
	cmd.Flags().IntVar(&opts.bands, "bands", 4, "partial deliveries per frame")
	cmd.Flags().DurationVar(&opts.period, "period", 20*time.Millisecond, "minimum inter-frame period")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long (0 = run until interrupted)")
	cmd.Flags().StringVar(&opts.frameLog, "frame-log", "", "record completed frames into this SQLite db")
	return cmd
}

func buildSource(opts runOptions) (*acquire.Registry, *acquire.HardwareSource, error) {
	registry := acquire.NewRegistry()
	if rootAliasFile != "" {
		if err := registry.LoadAliasFile(rootAliasFile); err != nil {
			return nil, nil, err
		}
	} else if err := registry.LoadAliasFileFromEnv(); err != nil {
		return nil, nil, err
	}

	backend := acquire.NewSimulatedBackend(acquire.SimulatedBackendConfig{
		Rows:          opts.rows,
		Cols:          opts.cols,
		Channels:      opts.channels,
		BandsPerFrame: opts.bands,
	})
	source := acquire.NewHardwareSource(rootSourceID, "Simulated Detector", backend,
		acquire.WithMinFramePeriod(opts.period))
	registry.Register(source)
	return registry, source, nil
}

func runView(parent context.Context, opts runOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, source, err := buildSource(opts)
	if err != nil {
		return err
	}
	defer registry.Close()

	var recorder *framelog.Recorder
	if opts.frameLog != "" {
		writer, err := framelog.Open(opts.frameLog)
		if err != nil {
			return err
		}
		defer writer.Close()
		recorder = framelog.NewRecorder(source, writer)
		defer recorder.Close()
	}

	frameSub := source.SubscribeFrames(func(fs acquire.FrameSet) {
		log.Info().
			Int("frame", fs.FrameIndex).
			Int("channels", len(fs.Channels)).
			Str("session", fs.SessionID).
			Msg("frame complete")
	})
	defer frameSub.Close()
	stateSub := source.SubscribeStateChanges(func(sc acquire.StateChange) {
		log.Info().Str("slot", string(sc.Slot)).Bool("active", sc.Active).Msg("acquisition state")
	})
	defer stateSub.Close()

	group := acquire.NewRunGroup(ctx)
	group.Go("view-session", func(ctx context.Context) error {
		source.StartViewing()
		if opts.duration > 0 {
			timer := time.NewTimer(opts.duration)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		} else {
			<-ctx.Done()
		}
		source.StopViewing()
		return nil
	})

	log.Info().Str("source", source.ID()).Msg("viewing started; interrupt to stop")
	return group.Wait()
}
