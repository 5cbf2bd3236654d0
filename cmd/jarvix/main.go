// Jarvix is a voice-first in-car assistant backend.
//
// It serves a framed streaming chat API, proxies speech-to-text and
// text-to-speech, and optionally wakes itself from MQTT triggers
// (destination set, call ended, ...). Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	jarvix                   Start the server
//	jarvix -config <path>    Start with an explicit config file
//	jarvix -version          Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jarvix-ai/jarvix/internal/agent"
	"github.com/jarvix-ai/jarvix/internal/api"
	"github.com/jarvix-ai/jarvix/internal/buildinfo"
	"github.com/jarvix-ai/jarvix/internal/calendar"
	"github.com/jarvix-ai/jarvix/internal/config"
	"github.com/jarvix-ai/jarvix/internal/events"
	"github.com/jarvix-ai/jarvix/internal/llm"
	"github.com/jarvix-ai/jarvix/internal/memory"
	"github.com/jarvix-ai/jarvix/internal/mqtt"
	"github.com/jarvix-ai/jarvix/internal/speech"
	"github.com/jarvix-ai/jarvix/internal/tools"
)

// defaultPersona keeps replies short and speakable. A persona_file in
// the config replaces it wholesale.
const defaultPersona = "You are Jarvix, a voice assistant riding along in the car. " +
	"You speak out loud, so keep every reply brief and conversational. " +
	"Always check memories before answering personal questions, and quietly " +
	"store new preferences as you learn them. Never mention tools, memory " +
	"systems, or that you are storing anything."

// main constructs the OS-level environment and delegates to [run] so
// the startup-to-shutdown lifecycle stays testable.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-version" || args[i] == "--version":
			fmt.Fprintln(stdout, buildinfo.String())
			return nil
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			fmt.Fprintln(stdout, "usage: jarvix [-config path] [-version]")
			return nil
		default:
			return fmt.Errorf("unknown argument %q", args[i])
		}
	}

	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Jarvix", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg := config.Default()
	if cfgPath, err := config.FindConfig(configPath); err == nil {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.XAI.Model)
	} else if configPath != "" {
		return err
	} else {
		logger.Warn("no config file found, using defaults")
	}

	if level, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
		logger = newLogger(stdout, level)
	} else {
		logger.Warn("invalid log level, using info", "error", err)
	}
	slog.SetDefault(logger)

	// SIGINT/SIGTERM trigger graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := events.New()

	// --- Memory gateway ---
	// Hosted mem0 when an API key is configured, local SQLite otherwise.
	var mem memory.Gateway
	if key := envOr(cfg.Mem0.APIKey, "MEM0_API_KEY"); key != "" {
		mem = memory.NewMem0Client(cfg.Mem0.BaseURL, key, logger)
		logger.Info("memory gateway: mem0")
	} else {
		store, err := memory.NewSQLiteStore(cfg.Memory.Path)
		if err != nil {
			return fmt.Errorf("open memory database %s: %w", cfg.Memory.Path, err)
		}
		defer store.Close()
		mem = store
		logger.Info("memory gateway: sqlite", "path", cfg.Memory.Path)
	}

	// --- Calendar gateway ---
	var cal calendar.Gateway
	if cfg.CalDAV.URL != "" {
		cdav, err := calendar.NewCalDAVClient(calendar.CalDAVConfig{
			URL:          cfg.CalDAV.URL,
			CalendarPath: cfg.CalDAV.CalendarPath,
			Username:     cfg.CalDAV.Username,
			Password:     cfg.CalDAV.Password,
		}, logger)
		if err != nil {
			return fmt.Errorf("caldav client: %w", err)
		}
		cal = cdav
		logger.Info("calendar gateway: caldav", "url", cfg.CalDAV.URL)
	} else {
		logger.Warn("calendar not configured - calendar tools will report failure")
	}

	// --- Model client ---
	xaiKey := envOr(cfg.XAI.APIKey, "XAI_API_KEY")
	client := llm.NewGrokClient(cfg.XAI.BaseURL, xaiKey, logger)

	registry := tools.NewRegistry(mem, cal, logger)
	sessions := agent.NewSessionStore()

	persona := defaultPersona
	if cfg.PersonaFile != "" {
		data, err := os.ReadFile(cfg.PersonaFile)
		if err != nil {
			return fmt.Errorf("read persona file: %w", err)
		}
		persona = strings.TrimSpace(string(data))
	}

	loop := agent.New(agent.Config{
		Client:         client,
		Tools:          registry,
		Memory:         mem,
		Calendar:       cal,
		Sessions:       sessions,
		Bus:            bus,
		Logger:         logger,
		Model:          cfg.XAI.Model,
		SystemPrompt:   persona,
		MaxWords:       cfg.Agent.MaxWords,
		UpcomingWindow: time.Duration(cfg.Agent.UpcomingWindowMinutes) * time.Minute,
	})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, logger)
	server.SetSessions(sessions)
	server.SetBus(bus)
	if xaiKey == "" {
		server.SetUnavailable("xai api key not configured")
		logger.Warn("XAI_API_KEY not set - chat endpoint disabled")
	}
	if cfg.Speech.BaseURL != "" {
		server.SetSpeech(speech.NewClient(cfg.Speech.BaseURL, cfg.Speech.APIKey, logger), cfg.Speech.Voice)
	} else {
		logger.Warn("speech not configured - transcribe/speech endpoints disabled")
	}

	// --- Trigger bridge ---
	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled {
		bridge = mqtt.NewBridge(cfg.MQTT, triggerRunner{loop: loop, logger: logger}, bus, logger)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("mqtt bridge: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		if bridge != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := bridge.Stop(stopCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Jarvix stopped")
	return nil
}

// triggerRunner adapts the agent loop to the bridge's TurnRunner
// without coupling the mqtt package to the loop.
type triggerRunner struct {
	loop   *agent.Loop
	logger *slog.Logger
}

func (t triggerRunner) RunTriggered(ctx context.Context, trigger, userID, message string) {
	go func() {
		turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		result := t.loop.Run(turnCtx, agent.TurnRequest{
			UserID:  userID,
			Trigger: trigger,
			Message: message,
		}, agent.TurnCallbacks{})
		t.logger.Info("triggered turn complete", "trigger", trigger, "rounds", result.Rounds)
	}()
}

func envOr(value, envKey string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKey)
}

// newLogger creates the process-wide structured logger. Jarvix logs
// text to stdout; the custom Trace level renders as "TRACE".
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
