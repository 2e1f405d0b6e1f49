package engine

import (
	"github.com/RecM/recm/internal/config"
	"github.com/RecM/recm/internal/playback"
)

// ConfigFrom builds an engine Config from the capture and playback config
// sections.
func ConfigFrom(c config.CaptureConfig, p config.PlaybackConfig) Config {
	return Config{
		CaptureInterval: c.Interval,
		TickResolution:  p.TickResolution,
		Playback: playback.Config{
			LoadTimeout:      p.LoadTimeout,
			LoadPollInterval: p.LoadPollInterval,
			Cooldown:         p.Cooldown,
			TrailInterval:    p.TrailInterval,
			DefaultModel:     p.DefaultModel,
		},
		Manager: playback.ManagerConfig{
			ModelLoadTimeout: p.ModelLoadTimeout,
			PollInterval:     p.ModelPollInterval,
			DriverModel:      p.DriverModel,
		},
	}
}
