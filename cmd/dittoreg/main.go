package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/marmos91/dittoreg/internal/logger"
	"github.com/marmos91/dittoreg/pkg/config"
	"github.com/marmos91/dittoreg/pkg/server"
)

const usage = `dittoreg - live export and client registries for NFS

Usage:
  dittoreg <command> [flags]

Commands:
  init     Write a default configuration file
  start    Start the registry server

Run 'dittoreg <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "start":
		runStart(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("config", "", "Where to write the config file (default: $XDG_CONFIG_HOME/dittoreg/config.yaml)")
	_ = fs.Parse(args)

	target := *path
	if target == "" {
		written, err := config.InitConfig(*force)
		if err != nil {
			log.Fatalf("Failed to initialize config: %v", err)
		}
		target = written
	} else if err := config.InitConfigToPath(target, *force); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration written to %s\n", target)
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittoreg/config.yaml)")
	logLevel := fs.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applyLogLevel(cfg, *logLevel); err != nil {
		log.Fatalf("Invalid -log-level: %v", err)
	}

	// Configure logger
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetFormat(cfg.Logging.Format); err != nil {
		log.Fatalf("Invalid log format: %v", err)
	}
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Invalid log output: %v", err)
	}
	defer logger.Sync()

	fmt.Println("dittoreg - NFS export and client registries")
	logger.Info("Log level set to: %s", logger.GetLevel())
	logger.Info("Server configuration:")
	logger.Info("  Shutdown timeout: %v", cfg.Server.ShutdownTimeout)
	logger.Info("  Stats log interval: %v", cfg.Server.StatsLogInterval)
	if cfg.Metrics.Enabled {
		logger.Info("  Metrics: enabled on port %d", cfg.Metrics.Port)
	} else {
		logger.Info("  Metrics: disabled")
	}
	if cfg.Admin.Enabled {
		logger.Info("  Admin API: enabled on port %d", cfg.Admin.Port)
	} else {
		logger.Info("  Admin API: disabled")
	}

	srv, err := server.New(cfg)
	if err != nil {
		logger.Error("Failed to create server: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil {
		logger.Error("Server error: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// applyLogLevel overrides the configured log level. An empty level keeps
// the configuration's value.
func applyLogLevel(cfg *config.Config, level string) error {
	if level == "" {
		return nil
	}
	if _, err := logger.ParseLevel(level); err != nil {
		return err
	}
	cfg.Logging.Level = strings.ToUpper(level)
	return nil
}
