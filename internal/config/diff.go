package config

import (
	"reflect"
	"time"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is set when the request defaults changed. These are
	// applied without restart.
	PipelineChanged  bool
	NewSegmentLength time.Duration
	NewWorkers       int

	// RestartRequired lists top-level sections that changed but only take
	// effect after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline.SegmentLength != new.Pipeline.SegmentLength || old.Pipeline.Workers != new.Pipeline.Workers {
		d.PipelineChanged = true
		d.NewSegmentLength = new.Pipeline.SegmentLength
		d.NewWorkers = new.Pipeline.Workers
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Pipeline.FFmpegPath != new.Pipeline.FFmpegPath || old.Pipeline.TempDir != new.Pipeline.TempDir {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if old.Summarize != new.Summarize {
		d.RestartRequired = append(d.RestartRequired, "summarize")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}

	return d
}
