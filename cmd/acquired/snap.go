package main

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lumascope/acquire"
)

func newSnapCmd() *cobra.Command {
	opts := runOptions{}
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "snap",
		Short: "Record a single frame from the simulated detector",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, source, err := buildSource(opts)
			if err != nil {
				return err
			}
			defer registry.Close()

			// Subscribe before starting so the single frame of the
			// record session cannot slip past the waiter.
			frames := make(chan acquire.FrameSet, 1)
			frameSub := source.SubscribeFrames(func(fs acquire.FrameSet) {
				select {
				case frames <- fs:
				default:
				}
			})
			defer frameSub.Close()

			source.StartRecording()

			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case fs := <-frames:
				for _, ch := range fs.Channels {
					log.Info().
						Str("channel", ch.ChannelID).
						Int("rows", ch.Shape.Rows).
						Int("cols", ch.Shape.Cols).
						Int("frame", ch.FrameIndex).
						Msg("recorded channel")
				}
				return nil
			case <-timer.C:
				return acquire.ErrFrameTimeout
			}
		},
	}
	cmd.Flags().IntVar(&opts.rows, "rows", 256, "frame rows")
	cmd.Flags().IntVar(&opts.cols, "cols", 256, "frame columns")
	cmd.Flags().IntVar(&opts.channels, "channels", 1, "detector channels per frame")
	cmd.Flags().IntVar(&opts.bands, "bands", 1, "partial deliveries per frame")
	cmd.Flags().DurationVar(&opts.period, "period", time.Millisecond, "minimum inter-frame period")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the frame")
	return cmd
}
