package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds receiver defaults from VMDISPLAY_* environment variables.
type EnvConfig struct {
	DevicePaths         []string      `env:"VMDISPLAY_DEVICE" envSeparator:"," envDefault:"/dev/hyper_dmabuf,/dev/xen/hyper_dmabuf"`
	Outputs             int           `env:"VMDISPLAY_OUTPUTS" envDefault:"4"`
	MaxBuffers          int           `env:"VMDISPLAY_MAX_BUFFERS" envDefault:"8"`
	Boundaries          string        `env:"VMDISPLAY_BOUNDARIES" envDefault:"global"`
	PollInterval        time.Duration `env:"VMDISPLAY_POLL_INTERVAL" envDefault:"100ms"`
	BufferDir           string        `env:"VMDISPLAY_BUFFER_DIR" envDefault:"/dev/shm/vmdisplay"`
	BufferPrefix        string        `env:"VMDISPLAY_BUFFER_PREFIX" envDefault:"output"`
	DumpPath            string        `env:"VMDISPLAY_DUMP" envDefault:""`
	TraceID             string        `env:"VMDISPLAY_TRACE_ID" envDefault:""`
	ParentID            string        `env:"VMDISPLAY_PARENT_ID" envDefault:""`
	Attributes          string        `env:"VMDISPLAY_ATTRIBUTES" envDefault:""`
	NoTracing           bool          `env:"VMDISPLAY_NO_TRACING" envDefault:"false"`
	LogLevel            string        `env:"VMDISPLAY_LOG_LEVEL" envDefault:"info"`
}

// ParseEnvConfig parses receiver configuration from environment variables.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}
