// agent is the editor-side daemon. An editor plugin spawns it and streams
// activity signals as JSON lines on stdin:
//
//	{"type":"activity","entity":"/src/main.go","project":"app","language":"Go","is_write":true}
//	{"type":"debug","active":true}
//
// The daemon debounces activity into heartbeats, batches them, and delivers
// batches on an interval, buffering to local disk across restarts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"trackio.app/trackio/common/logger"
	"trackio.app/trackio/core/config"
	"trackio.app/trackio/internal/agent"
)

type inputLine struct {
	Type     string `json:"type"`
	Entity   string `json:"entity"`
	Project  string `json:"project"`
	Language string `json:"language"`
	IsWrite  bool   `json:"is_write"`
	Active   bool   `json:"active"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.ServiceTypeAgent)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Setup(cfg)

	apiKey := os.Getenv("TRACKIO_API_KEY")
	if apiKey == "" {
		slog.ErrorContext(ctx, "TRACKIO_API_KEY is required")
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Agent.CachePath), 0o755); err != nil {
		slog.ErrorContext(ctx, "failed to create cache directory", "error", err)
		os.Exit(1)
	}
	cache, err := agent.OpenCache(cfg.Agent.CachePath, cfg.Agent.CacheMaxAge, agent.SystemClock, slog.Default())
	if err != nil {
		slog.ErrorContext(ctx, "failed to open cache", "error", err, "path", cfg.Agent.CachePath)
		os.Exit(1)
	}
	defer cache.Close()

	var transport agent.Transport
	if cfg.Agent.CLIPath != "" {
		transport = agent.NewSubprocessTransport(cfg.Agent.CLIPath, apiKey, cfg.Agent.APIURL, "agent/"+version, 30*time.Second)
	} else {
		transport = agent.NewHTTPTransport(cfg.Agent.APIURL, apiKey, 30*time.Second)
	}

	emitter := agent.NewEmitter(agent.SystemClock, cfg.Agent.Debounce)
	sender := agent.NewSender(emitter, cache, transport, agent.SenderConfig{
		Timezone:      localTimezone(),
		FlushInterval: cfg.Agent.FlushInterval,
	}, func(s agent.Status) {
		slog.InfoContext(ctx, "status", "state", s.String())
	}, slog.Default())

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		if err := sender.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "sender stopped", "error", err)
		}
	}()

	slog.InfoContext(ctx, "agent started",
		"debounce", cfg.Agent.Debounce,
		"flush_interval", cfg.Agent.FlushInterval)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line inputLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			slog.WarnContext(ctx, "skipping malformed input line", "error", err)
			continue
		}
		switch line.Type {
		case "activity":
			emitter.Observe(agent.Activity{
				Entity:   line.Entity,
				Project:  line.Project,
				Language: line.Language,
				IsWrite:  line.IsWrite,
			})
		case "debug":
			emitter.SetDebugging(line.Active)
		default:
			slog.WarnContext(ctx, "skipping unknown input line", "type", line.Type)
		}

		select {
		case <-ctx.Done():
		default:
			continue
		}
		break
	}

	// Stdin EOF means the editor is gone: flush and persist leftovers.
	cancel()
	<-doneCh
	slog.Info("agent stopped")
}

// localTimezone resolves the host's IANA zone name, falling back to UTC when
// the platform only reports the opaque "Local".
func localTimezone() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return tz
	}
	name := time.Now().Location().String()
	if name == "" || name == "Local" {
		return "UTC"
	}
	return name
}

var version = "dev"
