// Package main implements the claimvault binary, which serves the claim
// store over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/claimvault/claimvault/internal/app"
	"github.com/claimvault/claimvault/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		addr        string
		env         string
		envFile     string
		getKey      string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&addr, "addr", "", "HTTP listen address")
	flag.StringVar(&env, "env", "", "Environment: development, staging, production")
	flag.StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	flag.StringVar(&getKey, "get", "", "Print one resolved setting (e.g. app.upload_folder) and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "claimvault - insurance claim storage service\n\n")
		fmt.Fprintf(os.Stderr, "Usage: claimvault [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  claimvault --data-dir /var/lib/claimvault\n")
		fmt.Fprintf(os.Stderr, "  claimvault --env staging --config /etc/claimvault/config.yaml\n")
		fmt.Fprintf(os.Stderr, "  claimvault --get remote.claims_table\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CLAIMVAULT_ENV                      development, staging or production\n")
		fmt.Fprintf(os.Stderr, "  CLAIMVAULT_DATA_DIR                 Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  CLAIMVAULT_REMOTE_ENDPOINT          Remote document store endpoint\n")
		fmt.Fprintf(os.Stderr, "  CLAIMVAULT_REMOTE_USE_MANAGED_IDENTITY  Use the ambient credential chain\n")
		fmt.Fprintf(os.Stderr, "  CLAIMVAULT_REMOTE_FALLBACK_TO_LOCAL Run local-only when the remote store fails\n")
		fmt.Fprintf(os.Stderr, "  CLAIMVAULT_BACKUP_TYPE              Backup sink (local, s3)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("claimvault version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Printf("[WARN] failed to load %s: %v", envFile, err)
		}
	}

	cfg, err := loadConfig(configFile, dataDir, addr, env)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if getKey != "" {
		cfg.Resolve()
		if err := printSetting(os.Stdout, cfg, getKey); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults or a file, then the environment, then flags.
func loadConfig(configFile, dataDir, addr, env string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if env != "" {
		cfg.Environment = config.Environment(env)
	}

	return cfg, nil
}

// printSetting writes the value at a dotted config key. Secrets are masked.
func printSetting(w io.Writer, cfg *config.Config, key string) error {
	if _, ok := cfg.Lookup(key); !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	v := cfg.String(key, "")
	if v != "" && strings.Contains(key, "secret") {
		v = "********"
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

func printBanner(cfg *config.Config) {
	remote := "disabled"
	if cfg.Remote.Configured() {
		remote = cfg.Remote.Endpoint
	}

	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                       CLAIMVAULT                          ║")
	log.Printf("║            Insurance claim storage service                ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Environment: %s", cfg.Environment)
	log.Printf("  Data Dir:    %s", cfg.DataDir)
	log.Printf("  HTTP:        %s", cfg.HTTP.Addr)
	log.Printf("  Backups:     %s", cfg.Backup.Type)
	log.Printf("  Remote:      %s", remote)
	log.Printf("  Managed ID:  %v", cfg.Remote.UseManagedIdentity)
	log.Printf("  Fallback:    %v", cfg.Remote.FallbackToLocal)
	log.Printf("")
}
