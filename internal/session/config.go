package session

import (
	"runtime"
	"time"

	"github.com/sourcequery/engine/rcon"
)

// Config carries the Session Manager's tunables, spec.md §6. The top-level
// config package loads these from YAML and constructs one of these; session
// itself has no knowledge of file formats.
type Config struct {
	ReadTimeout           time.Duration
	MaxRetries            int
	BackoffInitial        time.Duration
	BackoffMax            time.Duration
	WorkerPoolSize        int
	WriteQueueDepth       int
	RconMaxFrameBytes     int
	RconTerminatorPattern []byte
}

// DefaultConfig matches spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:       5000 * time.Millisecond,
		MaxRetries:        2,
		BackoffInitial:    250 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		WorkerPoolSize:        runtime.NumCPU(),
		WriteQueueDepth:       256,
		RconMaxFrameBytes:     4096,
		RconTerminatorPattern: rcon.DefaultTerminatorPattern,
	}
}
