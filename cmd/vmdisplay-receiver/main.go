// vmdisplay-receiver receives display frames from another domain over
// hyper_dmabuf and reports them as OpenTelemetry spans.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mrzor/vmdisplay-receiver/internal/communicator"
	"github.com/mrzor/vmdisplay-receiver/internal/config"
	"github.com/mrzor/vmdisplay-receiver/internal/frameprocessor"
	"github.com/mrzor/vmdisplay-receiver/internal/framestream"
	"github.com/mrzor/vmdisplay-receiver/internal/otel"
	"github.com/mrzor/vmdisplay-receiver/internal/output"
	"github.com/mrzor/vmdisplay-receiver/internal/outputbuf"
	"github.com/mrzor/vmdisplay-receiver/internal/outputmeta"
	"github.com/mrzor/vmdisplay-receiver/internal/record"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// setupOTEL initializes the OTEL provider and returns a tracer and cleanup function.
func setupOTEL(cfg *config.Config, versionInfo string) (trace.Tracer, func(), error) {
	if cfg.NoTracing {
		log.Printf("Tracing disabled, frame spans are discarded")
		return noop.NewTracerProvider().Tracer("vmdisplay-receiver"), func() {}, nil
	}

	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	tp, err := otel.InitProvider(otelCfg, versionInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("ABORT: failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.Printf("Error shutting down OTEL provider: %v", err)
		}
	}

	return tp.Tracer("vmdisplay-receiver"), cleanup, nil
}

// setupReceiver maps the destination regions and opens the channel to the
// sending domain.
func setupReceiver(cfg *config.Config, logger *slog.Logger) (*communicator.Receiver, *outputbuf.Regions, func(), error) {
	regions, err := outputbuf.Open(cfg.BufferDir, cfg.BufferPrefix, cfg.Outputs, record.FrameRegionSize(cfg.MaxBuffers))
	if err != nil {
		return nil, nil, nil, err
	}

	receiver := communicator.NewReceiver(
		communicator.WithDevicePaths(cfg.DevicePaths...),
		communicator.WithPollInterval(cfg.PollInterval),
		communicator.WithMaxOutputs(cfg.Outputs),
		communicator.WithBoundaryMode(cfg.Boundaries),
		communicator.WithLogger(logger),
	)
	if err := receiver.Init(cfg.DomainID, communicator.Receive, ""); err != nil {
		if closeErr := regions.Close(); closeErr != nil {
			log.Printf("Error unmapping destination regions after init failure: %v", closeErr)
		}
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := receiver.Cleanup(); err != nil {
			log.Printf("Error closing channel: %v", err)
		}
		if err := regions.Close(); err != nil {
			log.Printf("Error unmapping destination regions: %v", err)
		}
	}

	return receiver, regions, cleanup, nil
}

// openDump opens the CBOR dump target. "-" is stdout.
func openDump(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path) //nolint:gosec // operator-chosen dump path
	if err != nil {
		return nil, nil, fmt.Errorf("opening dump file: %w", err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing dump file: %v", err)
		}
	}, nil
}

// setupComponents builds the sinks and the frame stream.
func setupComponents(
	cfg *config.Config,
	tracer trace.Tracer,
	receiver *communicator.Receiver,
	regions *outputbuf.Regions,
	logger *slog.Logger,
) (*framestream.Stream, func(), error) {
	metadataManager := outputmeta.NewManager()

	formatter, err := output.NewOTELFormatter(
		tracer,
		metadataManager,
		cfg.CustomAttributes,
		cfg.TraceID,
		cfg.ParentID,
		environ(),
		logger,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTEL formatter: %w", err)
	}
	sinks := output.Multi{formatter}
	closers := []func(){func() {
		if err := formatter.Close(); err != nil {
			log.Printf("Error closing OTEL formatter: %v", err)
		}
	}}

	if cfg.DumpPath != "" {
		w, closeDump, err := openDump(cfg.DumpPath)
		if err != nil {
			return nil, nil, err
		}
		dump, err := output.NewDumpWriter(w)
		if err != nil {
			closeDump()
			return nil, nil, err
		}
		sinks = append(sinks, dump)
		closers = append(closers, closeDump)
	}

	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	processor := frameprocessor.NewProcessor(cfg.DomainID, metadataManager, sinks)
	return framestream.New(receiver, regions.Slices(), processor, logger), cleanup, nil
}

// environ returns the process environment as a map for expressions.
func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func run() error {
	cfg, err := config.ParseArgs(os.Args, version, commit, date)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("vmdisplay-receiver %s\n", cfg.Version)
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	log.Printf("Starting vmdisplay-receiver %s (commit: %s, built: %s)", version, commit, date)

	versionInfo := fmt.Sprintf("%s (%s)", version, commit)
	tracer, cleanupOTEL, err := setupOTEL(cfg, versionInfo)
	if err != nil {
		return err
	}
	defer cleanupOTEL()

	receiver, regions, cleanupReceiver, err := setupReceiver(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupReceiver()

	stream, cleanupSinks, err := setupComponents(cfg, tracer, receiver, regions, logger)
	if err != nil {
		return err
	}
	defer cleanupSinks()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stream.Start(ctx); err != nil {
		return err
	}

	log.Printf("Receiving frames from domain %d on %d outputs (%s boundaries)...", cfg.DomainID, cfg.Outputs, cfg.Boundaries)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		log.Println("Received signal, stopping...")
	case <-stream.Done():
	}

	if err := stream.Stop(); err != nil {
		log.Printf("Error stopping stream: %v", err)
	}
	if err := regions.Sync(); err != nil {
		log.Printf("Error syncing destination regions: %v", err)
	}

	stats, shortReads := receiver.Stats()
	log.Printf("Received %d records, %d frames (%d closed early), dropped %d records, discarded %d short reads",
		stats.Records, stats.Frames, stats.EarlyFrames, stats.Dropped, shortReads)

	return stream.Err()
}
