// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package migrate applies database migrations after a deployment bring-up.
//
// Migration is best effort. The stack is usable without it, so every
// failure comes back as a warning in Outcome rather than an error.
package migrate

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AleutianAI/parity/cmd/parity/internal/infra/process"
	"github.com/AleutianAI/parity/pkg/logging"
)

// MigrationsDir is the Supabase CLI migrations directory.
const MigrationsDir = "supabase/migrations"

// PingFunc checks that the database accepts connections.
type PingFunc func(ctx context.Context, dsn string) error

// Config configures a Runner.
type Config struct {
	Proc   process.Manager
	Logger *logging.Logger

	// Ping overrides the pgx connection check. Tests only.
	Ping PingFunc

	// ReadyTimeout bounds the wait for the database. Default: 60s.
	ReadyTimeout time.Duration

	// PollInterval is the delay between pings. Default: 1s.
	PollInterval time.Duration
}

// Target is the database to migrate.
type Target struct {
	ProjectDir string
	Host       string
	Port       int
	Password   string
}

// DSN returns the postgres connection string for t.
func (t Target) DSN() string {
	host := t.Host
	if host == "" {
		host = "127.0.0.1"
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword("postgres", t.Password),
		Host:     host + ":" + strconv.Itoa(t.Port),
		Path:     "/postgres",
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Outcome reports what Run did.
type Outcome struct {
	Applied bool

	// Skipped is true when there was nothing to apply.
	Skipped bool

	// Warning is set when migration was attempted or needed but did not
	// complete. It includes a manual command.
	Warning string
}

// Runner waits for the database and pushes migrations.
type Runner struct {
	proc         process.Manager
	log          *logging.Logger
	ping         PingFunc
	readyTimeout time.Duration
	pollInterval time.Duration
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		proc:         cfg.Proc,
		log:          cfg.Logger,
		ping:         cfg.Ping,
		readyTimeout: cfg.ReadyTimeout,
		pollInterval: cfg.PollInterval,
	}
	if r.log == nil {
		r.log = logging.Nop()
	}
	if r.ping == nil {
		r.ping = pgxPing
	}
	if r.readyTimeout <= 0 {
		r.readyTimeout = 60 * time.Second
	}
	if r.pollInterval <= 0 {
		r.pollInterval = time.Second
	}
	return r
}

// Run applies pending migrations to t.
//
// # Description
//
// Steps, each of which ends the run with a Warning on failure:
//
//  1. Skip when the project has no migrations directory.
//  2. Require the supabase CLI on PATH.
//  3. Ping the database until it accepts connections or ReadyTimeout.
//  4. Run `supabase db push --db-url <dsn>` in the project directory.
func (r *Runner) Run(ctx context.Context, t Target) Outcome {
	if _, err := os.Stat(filepath.Join(t.ProjectDir, MigrationsDir)); err != nil {
		r.log.Debug("no migrations directory, skipping", "dir", MigrationsDir)
		return Outcome{Skipped: true}
	}

	manual := fmt.Sprintf("supabase db push --db-url 'postgresql://postgres:<password>@127.0.0.1:%d/postgres'", t.Port)

	if _, err := r.proc.LookPath("supabase"); err != nil {
		return r.warn("supabase CLI not found; apply migrations manually with: " + manual)
	}

	dsn := t.DSN()
	if err := r.waitReady(ctx, dsn); err != nil {
		return r.warn(fmt.Sprintf("database not ready (%v); apply migrations later with: %s", err, manual))
	}

	start := time.Now()
	stdout, stderr, code, err := r.proc.RunInDir(ctx, t.ProjectDir, nil, "supabase", "db", "push", "--db-url", dsn)
	if err != nil {
		return r.warn(fmt.Sprintf("migration aborted (%v); retry with: %s", err, manual))
	}
	if code != 0 {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = strings.TrimSpace(stdout)
		}
		return r.warn(fmt.Sprintf("migration failed with exit code %d: %s; retry with: %s",
			code, redact(detail, t.Password), manual))
	}

	r.log.Info("migrations applied", "duration", time.Since(start).String())
	return Outcome{Applied: true}
}

func (r *Runner) waitReady(ctx context.Context, dsn string) error {
	ctx, cancel := context.WithTimeout(ctx, r.readyTimeout)
	defer cancel()

	var lastErr error
	for {
		attemptCtx, attemptCancel := context.WithTimeout(ctx, r.pollInterval*5)
		lastErr = r.ping(attemptCtx, dsn)
		attemptCancel()
		if lastErr == nil {
			return nil
		}
		r.log.Debug("database not ready yet", "error", lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %s: %w", r.readyTimeout, lastErr)
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Runner) warn(msg string) Outcome {
	r.log.Warn("migration step did not complete", "detail", msg)
	return Outcome{Warning: msg}
}

func pgxPing(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return conn.Ping(ctx)
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "********")
}
