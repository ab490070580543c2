// Package config is the CLI/env surface of the server binary (spec §6):
// PORT, a backend connection string, PREFIX, and ENV, bound through
// github.com/urfave/cli/v2 flags with environment-variable fallbacks, the
// same flag/EnvVars shape volaticloud-volaticloud's cmd/server/main.go uses.
// github.com/joho/godotenv optionally loads a local .env file before flags
// are parsed, the conventional pairing for this kind of CLI in the Go
// ecosystem; no file in the pack exercises this library, so its use here is
// named rather than grounded.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Config is the fully-resolved process configuration for one meshqld run.
type Config struct {
	// Port is the TCP port the HTTP server binds.
	Port int
	// Prefix is prepended to every graphlette/restlette mount path, e.g.
	// "/api" turns "/farm/graph" into "/api/farm/graph".
	Prefix string
	// Env names the deployment environment ("development", "production",
	// ...); it has no behavioral effect beyond what it's logged as.
	Env string
	// BackendDSN is the backend-specific connection string (a Postgres/
	// MySQL/SQLite DSN, a broker address list, or a ksqlDB endpoint),
	// interpreted by whichever repository package the caller selects.
	BackendDSN string
}

// Load builds the cli.App for the server binary and parses args (typically
// os.Args) into a Config. A missing .env file is not an error: godotenv.Load
// is best-effort, matching the convention that .env is a local development
// convenience, never a requirement in production where real environment
// variables are set directly.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	app := &cli.App{
		Name:  "meshqld",
		Usage: "serve a federated envelope query mesh",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "port",
				Usage:       "port the HTTP server listens on",
				Value:       8080,
				EnvVars:     []string{"PORT"},
				Destination: &cfg.Port,
			},
			&cli.StringFlag{
				Name:        "prefix",
				Usage:       "path prefix mounted in front of every graphlette/restlette",
				Value:       "",
				EnvVars:     []string{"PREFIX"},
				Destination: &cfg.Prefix,
			},
			&cli.StringFlag{
				Name:        "env",
				Usage:       "deployment environment name",
				Value:       "development",
				EnvVars:     []string{"ENV"},
				Destination: &cfg.Env,
			},
			&cli.StringFlag{
				Name:        "backend-dsn",
				Usage:       "backend connection string (meaning depends on the selected backend)",
				Value:       "",
				EnvVars:     []string{"BACKEND_DSN"},
				Destination: &cfg.BackendDSN,
			},
		},
		Action: func(*cli.Context) error { return nil },
	}

	if err := app.Run(args); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
