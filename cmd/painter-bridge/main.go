// Command painter-bridge is the host-side end of the painter engine bridge.
// It accepts the engine's WebSocket connection, answers its commands and
// keeps the engine process alive.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/flowptr/painter-bridge/internal/audit"
	"github.com/flowptr/painter-bridge/internal/bridge"
	"github.com/flowptr/painter-bridge/internal/cleanup"
	"github.com/flowptr/painter-bridge/internal/commands"
	"github.com/flowptr/painter-bridge/internal/config"
	"github.com/flowptr/painter-bridge/internal/dispatch"
	"github.com/flowptr/painter-bridge/internal/host/local"
	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/mcp"
	"github.com/flowptr/painter-bridge/internal/settings"
	"github.com/flowptr/painter-bridge/internal/staleness"
	"github.com/flowptr/painter-bridge/internal/supervisor"
	"github.com/flowptr/painter-bridge/internal/transport"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

type options struct {
	configPath  string
	projectPath string
	httpAddress string
	debug       bool
	enableMCP   bool
	invocation  string
}

func main() {
	opts, done, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if done {
		return
	}
	if err := run(opts); err != nil {
		logger.Error("painter-bridge: %v", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, bool, error) {
	var opts options
	flagSet := pflag.NewFlagSet("painter-bridge", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to painter-bridge.jsonc (default: ./config or ~/.painter-bridge/config)")
	flagSet.StringVar(&opts.projectPath, "project", "", "project file to open (created when missing)")
	flagSet.StringVar(&opts.httpAddress, "http", "", "address for /health, /ready, /metrics and /mcp (overrides server.http_address)")
	flagSet.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&opts.enableMCP, "mcp", false, "mount the MCP tool surface on the side HTTP server")
	showVersion := flagSet.BoolP("version", "v", false, "print version and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: painter-bridge [flags] [?%s=...&%s=...&%s=...]\n\n", config.KeyInterpreter, config.KeyStartupScript, config.KeyPort)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, true, nil
		}
		return opts, false, err
	}
	if *showVersion {
		fmt.Printf("painter-bridge %s\n", Version)
		return opts, true, nil
	}

	rest := flagSet.Args()
	if len(rest) > 1 {
		return opts, false, fmt.Errorf("unexpected argument: %s", rest[1])
	}
	if len(rest) == 1 {
		opts.invocation = rest[0]
	}
	return opts, false, nil
}

// resolveInvocation prefers the query argument, then the environment, then
// the config file. The config fallback for the engine applies only when it
// names both the interpreter and the startup script.
func resolveInvocation(arg string, cfg *config.UnifiedConfig, getenv func(string) string) (config.Invocation, error) {
	var inv config.Invocation
	if arg != "" {
		parsed, err := config.ParseInvocation(arg)
		if err != nil {
			return inv, err
		}
		inv = parsed
	} else {
		inv = config.InvocationFromEnv(getenv)
	}

	fallback := config.Invocation{Port: cfg.Server.Port}
	if cfg.Engine.Interpreter != "" && cfg.Engine.StartupScript != "" {
		fallback.Interpreter = cfg.Engine.Interpreter
		fallback.StartupScript = cfg.Engine.StartupScript
	}
	return inv.Merge(fallback), nil
}

func run(opts options) error {
	cfg, cfgPath, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if opts.httpAddress != "" {
		cfg.Server.HTTPAddress = opts.httpAddress
	}
	if opts.enableMCP {
		cfg.MCP.Enabled = true
	}

	if err := logger.Init(cfg.Logging.Dir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()
	if err := logger.InitSlog(cfg.Logging.Dir, cfg.Logging.JSON); err != nil {
		logger.Warn("Failed to initialize structured logging: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()
	logger.SetDebug(cfg.Logging.Debug || opts.debug)

	logger.Info("painter-bridge %s", Version)
	if cfgPath != "" {
		logger.Info("Config: %s", cfgPath)
	} else {
		logger.Info("Config: defaults (no %s found)", config.FileName)
	}

	inv, err := resolveInvocation(opts.invocation, cfg, os.Getenv)
	if err != nil {
		return err
	}

	restartInterval, err := cfg.RestartInterval()
	if err != nil {
		return err
	}

	store, err := settings.NewStore(cfg.Settings.DataDir)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("Settings database: %s/settings.db", cfg.Settings.DataDir)

	auditLog := audit.Default()

	painter := local.New(local.Options{
		ExportRoot:  filepath.Join(cfg.Settings.DataDir, "export"),
		SaveAsDir:   cfg.Settings.DataDir,
		Interpreter: cfg.Scripting.Interpreter,
	})
	if opts.projectPath != "" {
		if err := openOrCreate(painter.Workspace, opts.projectPath); err != nil {
			return err
		}
	}

	loop := bridge.NewLoop()
	registry := dispatch.NewRegistry()
	b := bridge.New(bridge.Options{Loop: loop, Registry: registry})

	server := transport.NewServer(transport.Options{Handlers: b.Handlers()})
	b.SetTransport(server)
	if err := server.Listen(cfg.Server.Host, inv.Port); err != nil {
		return err
	}
	logger.Info("Engine endpoint: ws://%s", server.Addr())

	sup := supervisor.New(supervisor.Options{
		Invocation: inv,
		Launcher:   &supervisor.ExecLauncher{Stdout: os.Stdout, Stderr: os.Stderr},
		Post:       func(fn func()) { loop.Post(fn) },

		RestartBurst:    cfg.Supervisor.RestartBurst,
		RestartInterval: restartInterval,
		OnLaunch: func(ev supervisor.LaunchEvent) {
			auditLog.Record(audit.OpEngineLaunch, "", ev.Err, map[string]interface{}{
				"launch_id": ev.ID,
				"reason":    ev.Reason,
				"pid":       ev.Pid,
				"cmdline":   ev.Cmdline,
			})
		},
	})
	b.SetSupervisor(sup)

	surface := commands.New(commands.Options{
		Host:      painter.Host(),
		Settings:  store,
		Push:      b,
		Ready:     b,
		Scripting: cfg.Scripting.Enabled,
		Audit:     auditLog,
	})
	surface.Register(registry)
	unsubscribe := commands.SubscribeHostEvents(painter.Events, b.Notify)
	defer unsubscribe()
	logger.Info("Registered %d engine commands", registry.Len())
	if !cfg.Scripting.Enabled {
		logger.Info("Scripting disabled: EXECUTE_STATEMENT will return false (set scripting.enabled to allow it)")
	}

	if cfg.StalenessEnabled() {
		sweeper, err := staleness.New(staleness.Options{
			Records: store,
			Project: func() string {
				if !painter.Workspace.IsOpen() {
					return ""
				}
				return painter.Workspace.ID()
			},
			Notify:   b.Notify,
			Schedule: cfg.Staleness.Schedule,
		})
		if err != nil {
			return err
		}
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	cleanerCfg := cleanup.DefaultConfig(cfg.Logging.Dir, cfg.Logging.RetentionDays)
	cleanerCfg.TmpDirs = []string{cfg.Settings.DataDir}
	if opts.projectPath != "" {
		cleanerCfg.TmpDirs = append(cleanerCfg.TmpDirs, filepath.Dir(opts.projectPath))
	}
	cleaner := cleanup.New(cleanerCfg)
	cleaner.Start()
	defer cleaner.Stop()

	var side *mcp.Server
	if cfg.Server.HTTPAddress != "" {
		side = newSideServer(cfg, b, sup, server, painter)
		if err := side.Listen(cfg.Server.HTTPAddress); err != nil {
			return err
		}
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	netCtx, cancelNet := context.WithCancel(context.Background())
	defer cancelNet()

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return b.Run(loopCtx) })
	g.Go(func() error { return server.Serve(netCtx) })
	if side != nil {
		g.Go(func() error { return side.Serve(netCtx) })
	}
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			logger.Info("Shutting down...")
		case <-gctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
		cancelNet()
		cancelLoop()
		return nil
	})

	loop.Post(func() {
		if err := sup.Bootstrap(supervisor.ReasonStartup); err != nil {
			logger.Info("Waiting for the engine to connect on its own")
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("painter-bridge stopped")
	return nil
}

// openOrCreate opens path, or starts a new project there when it does not exist
func openOrCreate(ws *local.Workspace, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		ws.Create(path)
		logger.Info("Created project %s", path)
		return nil
	}
	if err := ws.Open(path); err != nil {
		return fmt.Errorf("opening project %s: %w", path, err)
	}
	logger.Info("Opened project %s", path)
	return nil
}

func newSideServer(cfg *config.UnifiedConfig, b *bridge.Bridge, sup *supervisor.Supervisor, server *transport.Server, painter *local.Local) *mcp.Server {
	loop := b.Loop()
	tools := mcp.NewRegistry()
	mcp.RegisterBridgeTools(tools, mcp.BridgeOptions{
		Commands: b.Registry(),
		Loop:     loop,
		Push:     b.SendCommand,
		Status: func() mcp.EngineStatus {
			status := mcp.EngineStatus{
				Connected: b.IsConnected(),
				Ready:     b.Ready(),
				State:     sup.State().String(),
				Commands:  b.Registry().Len(),
			}
			if info, ok := server.Current(); ok {
				status.ConnectionID = info.ID
			}
			return status
		},
	})

	return mcp.NewServer(tools, mcp.ServerConfig{
		Name:      "painter-bridge",
		Version:   Version,
		EnableMCP: cfg.MCP.Enabled,
		Ready: func(ctx context.Context) error {
			var connected, ready bool
			if err := loop.Do(ctx, func() {
				connected, ready = b.IsConnected(), b.Ready()
			}); err != nil {
				return err
			}
			switch {
			case !connected:
				return errors.New("engine not connected")
			case !ready:
				return errors.New("engine connected but not ready")
			}
			return nil
		},
		Menu: func(ctx context.Context, x, y int) error {
			return loop.Do(ctx, func() { painter.ShowMenu(x, y) })
		},
	})
}
