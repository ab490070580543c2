// Command meshqld serves a federated envelope query mesh: one graphlette
// and one restlette per entity of the farm/coop/hen demo mesh (in-memory
// backends, seeded at startup), behind a single HTTP listener.
// Flags/env handling lives in package config; this binary's job is just to
// load that configuration, build the mesh, and run the server loop with
// graceful shutdown, the same split volaticloud-volaticloud's
// cmd/server/main.go uses between CLI parsing and serving.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	// Blank-imported so the three database/sql drivers sqlrepo supports
	// (spec.md §4.1) are registered in the binary, the way
	// volaticloud-volaticloud's cmd/server/main.go imports its drivers.
	// This binary does not itself open cfg.BackendDSN.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tailoredshapes/meshql/config"
	"github.com/tailoredshapes/meshql/envelope"
	"github.com/tailoredshapes/meshql/internal/demomesh"
	"github.com/tailoredshapes/meshql/logger"
)

// Exit codes per spec.md §6: 0 clean shutdown, 1 config parse failure,
// 2 listener bind failure.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitListenerError = 2
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	log := logger.New()

	cfg, err := config.Load(args)
	if err != nil {
		log.Error("config parse failed", "err", err)
		return exitConfigError
	}

	mesh, err := demomesh.Build(envelope.NoAuth{})
	if err != nil {
		log.Error("mesh build failed", "err", err)
		return exitConfigError
	}
	if _, _, _, _, err := mesh.Seed(); err != nil {
		log.Error("demo seed failed", "err", err)
		return exitConfigError
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      mesh.Handler(cfg.Prefix, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	listenErrCh := make(chan error, 1)
	go func() {
		log.Info("meshqld listening", "addr", server.Addr, "env", cfg.Env, "prefix", cfg.Prefix)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	select {
	case err := <-listenErrCh:
		if err != nil {
			log.Error("listener failed", "err", err)
			return exitListenerError
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}

	return exitOK
}

