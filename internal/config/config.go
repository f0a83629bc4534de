package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/mrzor/vmdisplay-receiver/internal/framereassembler"
)

// CustomAttribute is a span attribute computed from an expression.
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the parsed receiver configuration.
type Config struct {
	// DomainID is the sending domain whose display frames are received.
	DomainID int
	// DevicePaths are the hyper_dmabuf device nodes tried in order.
	DevicePaths []string
	// Outputs is the number of display outputs.
	Outputs int
	// MaxBuffers is the largest frame, in buffers, a destination region holds.
	MaxBuffers int
	// Boundaries selects whether frame boundaries are tracked globally or per output.
	Boundaries framereassembler.BoundaryMode
	// PollInterval bounds how long a blocked receive goes without checking for shutdown.
	PollInterval time.Duration
	// BufferDir holds one mapped destination file per output.
	BufferDir string
	// BufferPrefix names the destination files: <BufferDir>/<BufferPrefix>-<n>.
	BufferPrefix string
	// DumpPath receives a CBOR record per frame; "-" is stdout, empty disables.
	DumpPath string
	// TraceID is an expression for the trace ID of frame spans.
	TraceID string
	// ParentID is an expression for the parent span ID of frame spans.
	ParentID string
	// CustomAttributes are added to every frame span.
	CustomAttributes []CustomAttribute
	// NoTracing disables the OTLP exporter.
	NoTracing bool
	// LogLevel is the minimum level of library logs.
	LogLevel slog.Level
	// ShowVersion asks the caller to print version information and exit.
	ShowVersion bool
	// Version is the build version string shown in usage and logs.
	Version string
}

// ParseArgs parses command-line arguments on top of the VMDISPLAY_*
// environment. Flags override environment values; attributes from both are
// kept, environment first. args[0] is the program name.
func ParseArgs(args []string, version, commit, date string) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	envCfg, err := ParseEnvConfig()
	if err != nil {
		return nil, err
	}

	programName := filepath.Base(args[0])
	versionInfo := fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	cfg := &Config{Version: versionInfo}
	var attrFlags []string
	var logLevel, boundaries string

	flags := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flags.IntVarP(&cfg.DomainID, "domain", "d", 0, "sending domain id")
	flags.StringSliceVar(&cfg.DevicePaths, "device", envCfg.DevicePaths, "hyper_dmabuf device path, tried in order (repeatable)")
	flags.IntVar(&cfg.Outputs, "outputs", envCfg.Outputs, "number of display outputs")
	flags.IntVar(&cfg.MaxBuffers, "max-buffers", envCfg.MaxBuffers, "largest frame, in buffers, a destination region holds")
	flags.StringVar(&boundaries, "boundaries", envCfg.Boundaries, "frame boundary tracking: global or per-output")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", envCfg.PollInterval, "how often a blocked receive checks for shutdown")
	flags.StringVar(&cfg.BufferDir, "buffer-dir", envCfg.BufferDir, "directory of mapped per-output destination files")
	flags.StringVar(&cfg.BufferPrefix, "buffer-prefix", envCfg.BufferPrefix, "file name prefix of destination files")
	flags.StringVar(&cfg.DumpPath, "dump", envCfg.DumpPath, "write a CBOR record per frame to this file (- for stdout)")
	flags.StringVarP(&cfg.TraceID, "trace-id", "t", envCfg.TraceID, "trace ID expression for frame spans")
	flags.StringVarP(&cfg.ParentID, "parent-id", "p", envCfg.ParentID, "parent span ID expression for frame spans")
	flags.StringArrayVarP(&attrFlags, "attribute", "a", nil, "custom span attribute name=expression (repeatable)")
	flags.BoolVar(&cfg.NoTracing, "no-tracing", envCfg.NoTracing, "disable the OTLP trace exporter")
	flags.StringVar(&logLevel, "log-level", envCfg.LogLevel, "log level: debug, info, warn, error")
	flags.BoolVar(&cfg.ShowVersion, "version", false, "print version information and exit")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "%s %s\n\nReceives display frames from another domain over hyper_dmabuf.\n\nUsage: %s [flags]\n\n",
			programName, versionInfo, programName)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args[1:]); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	if cfg.Boundaries, err = framereassembler.ParseBoundaryMode(boundaries); err != nil {
		return nil, err
	}

	envAttrs, err := ParseAttributeString(envCfg.Attributes)
	if err != nil {
		return nil, fmt.Errorf("parsing VMDISPLAY_ATTRIBUTES: %w", err)
	}
	cfg.CustomAttributes = envAttrs
	for _, attrStr := range attrFlags {
		attr, err := parseAttribute(attrStr)
		if err != nil {
			return nil, err
		}
		cfg.CustomAttributes = append(cfg.CustomAttributes, attr)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DomainID < 0 {
		return fmt.Errorf("domain id must not be negative, got %d", c.DomainID)
	}
	if c.Outputs < 1 {
		return fmt.Errorf("--outputs must be at least 1, got %d", c.Outputs)
	}
	if c.MaxBuffers < 1 {
		return fmt.Errorf("--max-buffers must be at least 1, got %d", c.MaxBuffers)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive, got %v", c.PollInterval)
	}
	if len(c.DevicePaths) == 0 {
		return fmt.Errorf("at least one --device path is required")
	}
	if c.BufferPrefix == "" || strings.ContainsRune(c.BufferPrefix, filepath.Separator) {
		return fmt.Errorf("invalid --buffer-prefix %q", c.BufferPrefix)
	}
	return nil
}

// ParseAttributeString parses "name=expr;name=expr". Empty sections are skipped.
func ParseAttributeString(s string) ([]CustomAttribute, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var attrs []CustomAttribute
	for _, section := range strings.Split(s, ";") {
		if strings.TrimSpace(section) == "" {
			continue
		}
		attr, err := parseAttribute(section)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// parseAttribute parses one "name=expr". Only the first '=' separates.
func parseAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected name=expression", s)
	}

	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", s)
	}
	if expression == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", s)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}
