package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DecisionChanged is true if any decision threshold changed.
	DecisionChanged bool

	// QualityChanged is true if any quality gate threshold changed.
	QualityChanged bool

	// PlaybackChanged is true if any playback parameter changed.
	PlaybackChanged bool

	// RateLimitChanged is true if the per-user rate limit changed.
	RateLimitChanged bool
}

// Any reports whether the diff contains any hot-reloadable change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.DecisionChanged || d.QualityChanged ||
		d.PlaybackChanged || d.RateLimitChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; storage and
// provider changes require a restart and are ignored here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Decision != new.Decision {
		d.DecisionChanged = true
	}
	if old.Quality != new.Quality {
		d.QualityChanged = true
	}
	if old.Playback != new.Playback {
		d.PlaybackChanged = true
	}
	if old.RateLimit != new.RateLimit {
		d.RateLimitChanged = true
	}
	return d
}
