package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/RecM/recm/internal/catalog"
	"github.com/RecM/recm/internal/clock"
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/engine"
	"github.com/RecM/recm/internal/hostsim"
	"github.com/RecM/recm/internal/playback"
	"github.com/RecM/recm/internal/storage/memory"
	"github.com/RecM/recm/pkg/core"
)

// simOptions tunes a simulated playback.
type simOptions struct {
	control bool
	speed   int
	step    time.Duration
	limit   time.Duration
}

// simulate plays a stored recording against the simulated host on a virtual
// clock and returns the finished run. progress is called after every step.
func simulate(ctx context.Context, cat *catalog.Catalog, key core.RecordingKey, opts simOptions, logger *slog.Logger, progress func(elapsed time.Duration, lines []string)) (*core.PlaybackRun, error) {
	listing, _, err := cat.Get(key)
	if err != nil {
		return nil, err
	}

	vc := clock.NewVirtualClock(time.Now().UTC())
	history := memory.New(config.MemoryConfig{})
	store := engine.NewLocalStore(engine.LocalStoreDependencies{
		Catalog: cat, History: history, Clock: vc, Logger: logger,
	})
	host := hostsim.New(vc, hostsim.CatalogResolver(cat))

	cfg := engine.ConfigFrom(config.GetCaptureConfig(), config.GetPlaybackConfig())
	cfg.ManualStep = true
	eng, err := engine.New(engine.Dependencies{Host: host, Store: store, Clock: vc, Logger: logger}, cfg)
	if err != nil {
		return nil, err
	}
	if err := eng.Init(ctx); err != nil {
		return nil, err
	}
	defer eng.Shutdown(context.Background())

	if opts.control {
		v := host.PlaceVehicle(key.Model, listing.StartPosition)
		host.SetPlayerIntoVehicle(v)
	}
	s, err := eng.PlayListing(ctx, "recmctl", listing, opts.control)
	if err != nil {
		return nil, err
	}
	if opts.control {
		eng.SwitchSpeed(opts.speed)
	}

	var elapsed time.Duration
	for len(eng.Sessions()) > 0 {
		if err := ctx.Err(); err != nil {
			eng.StopSession(context.Background(), s.ID)
			return nil, err
		}
		if opts.limit > 0 && elapsed >= opts.limit {
			eng.StopSession(ctx, s.ID)
			break
		}
		vc.Advance(opts.step)
		elapsed += opts.step
		eng.Step()
		if progress != nil {
			progress(elapsed, eng.Progress())
		}
	}

	runs, err := history.RecentPlaybacks(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("playback of %s left no run", key)
	}
	return &runs[0], nil
}

func (c *cli) simulateCmd() *cobra.Command {
	opts := simOptions{speed: playback.DefaultSpeedIndex}
	cmd := &cobra.Command{
		Use:   "simulate NAME MODEL",
		Short: "Play a recording against a simulated host and print its progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.step <= 0 {
				return fmt.Errorf("--step must be positive")
			}
			cat, err := c.openCatalog()
			if err != nil {
				return err
			}

			// engine attributes ride along on every library log record
			var current atomic.Pointer[[]slog.Attr]
			c.setupSlog(cmd.ErrOrStderr(), func() []slog.Attr {
				if p := current.Load(); p != nil {
					return *p
				}
				return nil
			})

			out := cmd.OutOrStdout()
			last := -time.Second
			run, err := simulate(cmd.Context(), cat, keyArgs(args), opts, c.slog(), func(elapsed time.Duration, lines []string) {
				attrs := []slog.Attr{slog.Duration("elapsed", elapsed)}
				current.Store(&attrs)
				if elapsed/time.Second == last/time.Second {
					return
				}
				last = elapsed
				for _, l := range lines {
					fmt.Fprintf(out, "[%6.2fs] %s\n", elapsed.Seconds(), l)
				}
			})
			if err != nil {
				return err
			}

			c.log.Info().
				Str("session", run.SessionID).
				Str("reason", string(run.Reason)).
				Dur("played", run.StoppedAt.Sub(run.StartedAt)).
				Dur("duration", run.Duration).
				Float64("trail_m", run.TrailLength).
				Msg("Playback finished")
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.control, "control", false, "play from the player's seat instead of autonomously")
	cmd.Flags().IntVar(&opts.speed, "speed", playback.DefaultSpeedIndex, "speed table index when playing with --control")
	cmd.Flags().DurationVar(&opts.step, "step", 100*time.Millisecond, "virtual time per step")
	cmd.Flags().DurationVar(&opts.limit, "limit", 0, "stop after this much virtual time (0 plays to the end)")
	return cmd
}
