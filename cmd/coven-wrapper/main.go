// ABOUTME: Entry point for coven-wrapper, the setup-and-proxy host for an OpenClaw gateway
// ABOUTME: Loads .env and config, prints the banner and dispatches subcommands

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/coven-wrapper/internal/config"
	"github.com/2389/coven-wrapper/internal/token"
	"github.com/2389/coven-wrapper/internal/wrapper"
)

// version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __      __      ___ __ _ _ __  _ __   ___ _ __
 / __/ _ \ \ / / _ \ '_ \ ____\ \ /\ / / '__/ _' | '_ \| '_ \ / _ \ '__|
| (_| (_) \ V /  __/ | | |_____\ V  V /| | | (_| | |_) | |_) |  __/ |
 \___\___/ \_/ \___|_| |_|      \_/\_/ |_|  \__,_| .__/| .__/ \___|_|
                                                 |_|   |_|
`

// getConfigPath returns the optional wrapper config file. Empty means the
// environment alone configures the wrapper.
func getConfigPath() string {
	return os.Getenv("COVEN_WRAPPER_CONFIG")
}

func usage() {
	fmt.Println("Usage: coven-wrapper <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve           Start the wrapper (setup UI + gateway proxy)")
	fmt.Println("  token [--show]  Print where the gateway token comes from")
	fmt.Println("  health          Check wrapper health")
	fmt.Println("  version         Print version")
}

func main() {
	_ = godotenv.Load()

	cmd := "serve"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx)
	case "token":
		err = runToken(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version", "--version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	if path := getConfigPath(); path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Config:    %s\n", path)
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr())
	green.Print("    ▶ ")
	fmt.Printf("Gateway:   %s\n", cfg.Gateway.Target())
	green.Print("    ▶ ")
	fmt.Printf("State:     %s\n", cfg.Gateway.StateDir)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting coven-wrapper",
		"config", getConfigPath(),
		"http_addr", cfg.Server.HTTPAddr(),
		"gateway", cfg.Gateway.Target(),
		"state_dir", cfg.Gateway.StateDir,
	)

	w, err := wrapper.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating wrapper: %w", err)
	}
	return w.Run(ctx)
}

// runToken resolves the gateway token the same way serve does. The value is
// redacted unless --show is passed.
func runToken(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resolver := token.NewResolver(cfg.Gateway.Token, cfg.Gateway.StateDir, setupLogger(config.LoggingConfig{Level: "warn"}))
	tok, err := resolver.Resolve()
	if err != nil {
		return err
	}

	show := len(args) > 0 && args[0] == "--show"
	if show {
		fmt.Println(tok)
		return nil
	}
	fmt.Printf("source: %s\n", resolver.Source())
	fmt.Printf("file:   %s\n", resolver.Path())
	fmt.Printf("token:  %s\n", token.Redact(tok))
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/setup/healthz", host, cfg.Server.Port)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
