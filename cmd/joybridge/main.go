package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("joybridge v%s\n", version)
	fmt.Println("Joystick event translation daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  joybridge [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Polls a Linux joystick device (/dev/input/js*) at a fixed rate and publishes")
	fmt.Println("  normalized axis, button, X/Y position and velocity samples to WebSocket")
	fmt.Println("  subscribers. Engine state can be queried over a Unix domain socket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (optional; defaults are used when omitted)")
	fmt.Println()
	fmt.Println("  -env-file string")
	fmt.Println("        .env file with JOYBRIDGE_* overrides (default \".env\"; ignored if missing)")
	fmt.Println()
	fmt.Println("  -device string")
	fmt.Printf("        Joystick device node (default %q)\n", defaultDevicePath)
	fmt.Println()
	fmt.Println("  -x-axis int")
	fmt.Printf("        Axis index driving X position and angular velocity (default %d)\n", defaultXAxis)
	fmt.Println()
	fmt.Println("  -y-axis int")
	fmt.Printf("        Axis index driving Y position and linear velocity (default %d)\n", defaultYAxis)
	fmt.Println()
	fmt.Println("  -scale-v float")
	fmt.Printf("        Scale from Y position to linear velocity in m/s (default %.1f)\n", defaultScaleV)
	fmt.Println()
	fmt.Println("  -scale-a float")
	fmt.Printf("        Scale from X position to angular velocity in rad/s (default %.1f)\n", defaultScaleA)
	fmt.Println()
	fmt.Println("  -rate-hz int")
	fmt.Printf("        Polling cycle frequency in Hz (default %d)\n", defaultRateHz)
	fmt.Println()
	fmt.Println("  -ws-listen string")
	fmt.Printf("        WebSocket listen address, empty disables (default %q)\n", defaultWSListen)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC, empty disables (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (/dev/input/js0, axes 0/1)")
	fmt.Println("  joybridge")
	fmt.Println()
	fmt.Println("  # Right stick of a DualShock, forward is positive")
	fmt.Println("  joybridge -x-axis 3 -y-axis 4 -scale-v -0.5 -scale-a 1.5")
	fmt.Println()
	fmt.Println("  # Watch the published samples")
	fmt.Println("  joy-listen -ws ws://127.0.0.1:8765/samples")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to the device (run as root or add user to 'input' group)")
	fmt.Println("  - Output ports: axes, buttons, xy (position), va (velocity)")
	fmt.Println()
}

func main() {
	// Check for version/help early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "YAML config file")
		envFile    = flag.String("env-file", ".env", ".env file with JOYBRIDGE_* overrides")
		device     = flag.String("device", defaultDevicePath, "Joystick device node")
		xAxis      = flag.Int("x-axis", defaultXAxis, "Axis index for X")
		yAxis      = flag.Int("y-axis", defaultYAxis, "Axis index for Y")
		scaleV     = flag.Float64("scale-v", defaultScaleV, "Y position -> linear velocity scale")
		scaleA     = flag.Float64("scale-a", defaultScaleA, "X position -> angular velocity scale")
		rateHz     = flag.Int("rate-hz", defaultRateHz, "Polling cycle frequency in Hz")
		wsListen   = flag.String("ws-listen", defaultWSListen, "WebSocket listen address (empty disables)")
		ipcSocket  = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC (empty disables)")
		logLevel   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Only flags the user actually set override the config.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			overrides.Device = device
		case "x-axis":
			overrides.XAxis = xAxis
		case "y-axis":
			overrides.YAxis = yAxis
		case "scale-v":
			overrides.ScaleV = scaleV
		case "scale-a":
			overrides.ScaleA = scaleA
		case "rate-hz":
			overrides.RateHz = rateHz
		case "ws-listen":
			overrides.WSListen = wsListen
		case "ipc-socket":
			overrides.IPCSocket = ipcSocket
		case "log-level":
			overrides.LogLevel = logLevel
		}
	})

	cfg, err := loadConfig(*configPath, *envFile, overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, config file, environment and flags, then validates.
func loadConfig(configPath, envFile string, overrides FlagOverrides) (Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = LoadConfigFile(configPath); err != nil {
			return Config{}, err
		}
	}

	if err := LoadEnvFile(envFile); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	if err := ApplyEnvOverrides(&cfg, os.Getenv); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}

	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func run(cfg Config) error {
	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logOut := logOutput(cfg.Logging)
	defer logOut.Close()
	logger := setupLogger(level, logOut)

	var verifier *TokenVerifier
	if cfg.WebSocket.TokenSecretFile != "" {
		if verifier, err = LoadTokenVerifier(cfg.WebSocket.TokenSecretFile); err != nil {
			return err
		}
	}

	logger.Debug("starting joybridge", "version", version)
	logger.Debug("configuration",
		"device", cfg.Device.Path,
		"x_axis", cfg.Device.XAxis,
		"y_axis", cfg.Device.YAxis,
		"scale_v", cfg.Device.ScaleV,
		"scale_a", cfg.Device.ScaleA,
		"rate_hz", cfg.Scheduler.RateHz,
		"max_consecutive_errors", cfg.Scheduler.MaxConsecutiveErrors,
		"ws_listen", cfg.WebSocket.Listen,
		"ws_path", cfg.WebSocket.Path,
		"ws_auth", verifier != nil,
		"ipc_socket", cfg.IPC.SocketPath,
		"log_file", cfg.Logging.File,
		"statsview", statsViewAvailable())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queries := make(chan StateQuery, 16)

	wsServer := NewServer(logger, queries, ServerConfig{
		Hub: HubConfig{
			SendBuf:      cfg.WebSocket.SendBuf,
			BroadcastBuf: cfg.WebSocket.BroadcastBuf,
		},
		Verifier: verifier,
	})

	var outputs Outputs
	if cfg.WebSocket.Listen != "" {
		outputs = hubOutputs(wsServer.Hub())
	}
	if cfg.Logging.TraceSamples {
		outputs = tee(outputs, traceOutputs(logger))
	}

	engine := NewEngine(cfg.ToSessionConfig(), openJoystick, outputs, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runScheduler(gctx, engine, cfg.Scheduler, queries, logger)
	})

	if cfg.WebSocket.Listen != "" {
		g.Go(func() error {
			wsServer.Hub().Run(gctx)
			return nil
		})

		mux := http.NewServeMux()
		wsServer.Register(mux, cfg.WebSocket.Path)
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.WebSocket.Listen, mux, logger)
		})
	}

	if cfg.Debug.StatsViewAddr != "" {
		launchStatsView(cfg.Debug.StatsViewAddr, logger)
	}

	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(gctx, cfg.IPC.SocketPath, queries, cfg.IPCTimeout(), logger)
		})
	}

	logger.Info("listening",
		"device", cfg.Device.Path,
		"ws", cfg.WebSocket.Listen,
		"ipc", cfg.IPC.SocketPath,
		"rate_hz", cfg.Scheduler.RateHz)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("joybridge stopped", "error", err)
		return err
	}
	logger.Info("shut down")
	return nil
}
