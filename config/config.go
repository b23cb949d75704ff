// Package config loads the engine's tunables (SPEC_FULL.md §6) from YAML
// and converts them into the internal option structs the transport,
// session, and logging packages expect.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sourcequery/engine/internal/logging"
	"github.com/sourcequery/engine/internal/session"
	"github.com/sourcequery/engine/transport"
)

// Options is the YAML-serializable configuration surface. Durations are
// expressed in milliseconds on the wire to keep the file plain integers.
type Options struct {
	UDPBindAddr string `yaml:"udp-bind-addr"`

	ReadTimeoutMS     int `yaml:"read-timeout-ms"`
	MaxRetries        int `yaml:"max-retries"`
	BackoffInitialMS  int `yaml:"backoff-initial-ms"`
	BackoffMaxMS      int `yaml:"backoff-max-ms"`
	WorkerPoolSize    int `yaml:"worker-pool-size"`
	WriteQueueDepth   int `yaml:"write-queue-depth"`
	RconMaxFrameBytes int `yaml:"rcon-max-frame-bytes"`

	// RconTerminatorPattern overrides the accumulator's end-of-response
	// sentinel (spec.md §4.3 step 2, Open Question: made configurable since
	// it is observed rather than specified by Valve). Empty means use
	// rcon.DefaultTerminatorPattern.
	RconTerminatorPattern []byte `yaml:"rcon-terminator-pattern"`

	LogLevel string `yaml:"log-level"`
	LogJSON  bool   `yaml:"log-json"`
}

// Default returns the documented spec.md §6 defaults plus an ephemeral UDP
// bind address.
func Default() Options {
	d := session.DefaultConfig()
	return Options{
		UDPBindAddr:       ":0",
		ReadTimeoutMS:     int(d.ReadTimeout / time.Millisecond),
		MaxRetries:        d.MaxRetries,
		BackoffInitialMS:  int(d.BackoffInitial / time.Millisecond),
		BackoffMaxMS:      int(d.BackoffMax / time.Millisecond),
		WorkerPoolSize:    d.WorkerPoolSize,
		WriteQueueDepth:   d.WriteQueueDepth,
		RconMaxFrameBytes: d.RconMaxFrameBytes,
		LogLevel:          "info",
	}
}

// Load reads and parses a YAML file at path, starting from Default() so an
// omitted field keeps its documented default rather than zeroing out.
func Load(path string) (Options, error) {
	opts := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "reading config %s", path)
	}
	if err := yaml.Unmarshal(b, &opts); err != nil {
		return opts, errors.Wrapf(err, "parsing config %s", path)
	}
	return opts, nil
}

// SessionConfig converts to the internal/session tunables.
func (o Options) SessionConfig() session.Config {
	cfg := session.Config{
		ReadTimeout:       time.Duration(o.ReadTimeoutMS) * time.Millisecond,
		MaxRetries:        o.MaxRetries,
		BackoffInitial:    time.Duration(o.BackoffInitialMS) * time.Millisecond,
		BackoffMax:        time.Duration(o.BackoffMaxMS) * time.Millisecond,
		WorkerPoolSize:    o.WorkerPoolSize,
		WriteQueueDepth:   o.WriteQueueDepth,
		RconMaxFrameBytes: o.RconMaxFrameBytes,
	}
	if len(o.RconTerminatorPattern) > 0 {
		cfg.RconTerminatorPattern = o.RconTerminatorPattern
	} else {
		cfg.RconTerminatorPattern = session.DefaultConfig().RconTerminatorPattern
	}
	return cfg
}

// FrameLimits converts to the transport package's RCON frame bounds
// (spec.md §4.3: "size<10 || size>4096 is a protocol violation" scaled by
// RconMaxFrameBytes).
func (o Options) FrameLimits() transport.FrameLimits {
	return transport.FrameLimits{Min: 10, Max: o.RconMaxFrameBytes}
}

// LoggingOptions converts to the internal/logging setup options.
func (o Options) LoggingOptions() logging.Options {
	return logging.Options{Level: o.LogLevel, JSON: o.LogJSON}
}
