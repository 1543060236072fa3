// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/parity/cmd/parity/config"
	"github.com/AleutianAI/parity/cmd/parity/internal/infra/compose"
	"github.com/AleutianAI/parity/cmd/parity/internal/migrate"
	"github.com/AleutianAI/parity/cmd/parity/internal/plan"
	"github.com/AleutianAI/parity/cmd/parity/internal/platform"
	"github.com/AleutianAI/parity/cmd/parity/internal/secrets"
	"github.com/AleutianAI/parity/cmd/parity/internal/telemetry"
	"github.com/AleutianAI/parity/cmd/parity/internal/util"
	"github.com/AleutianAI/parity/pkg/logging"
)

// Up brings env up.
//
// # Description
//
// Phases, each traced as a child span of "parity.up":
//
//  1. Resolve: load parity.yaml, check the container runtime, detect the
//     backend platform, and build the overlay plan. A deployment
//     environment without a target triggers an offer to configure one.
//  2. Conflicts: another parity environment, the Supabase CLI stack, or a
//     foreign process on 80/443 must be stopped with operator consent.
//  3. Up-to-date check: if every expected container already runs, the
//     routing file is regenerated (written only if it changed), deployment
//     secrets are checked, and AlreadyUpToDate is returned without
//     invoking the runtime.
//  4. Reconcile: secrets (deployment), certificates (development), and
//     the routing file.
//  5. Start: `compose up -d`, then inspect what actually runs.
//  6. Migrate: deployment with Supabase only, best-effort.
//
// # Outputs
//
//   - *Outcome: Always non-nil, describing how far the run got
//   - error: util.ErrCancelled on an operator decline, a *util.StackError
//     for taxonomy failures, or a wrapped runtime error
//
// # Limitations
//
// Cancelling ctx while the runtime is starting containers leaves whatever
// already started running. The next Up reconciles from there.
func (e *Engine) Up(ctx context.Context, env string) (out *Outcome, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out = newOutcome(uuid.NewString(), env)
	log := e.log.With("run_id", out.RunID, "environment", env)
	start := e.now()

	ctx, span := telemetry.Tracer().Start(ctx, "parity.up", trace.WithAttributes(
		attribute.String("parity.environment", env),
		attribute.String("parity.run_id", out.RunID),
	))
	defer func() {
		recoverPanic(recover(), &err)
		e.finish(span, out, err, e.now().Sub(start), log)
	}()

	release, err := e.lock()
	if err != nil {
		return e.fail(out, err)
	}
	defer release()

	out.moveTo(StateResolvingMode)
	d, p, err := e.resolve(ctx, out, log)
	if err != nil {
		return e.fail(out, err)
	}

	out.moveTo(StateCheckingConflicts)
	if err := e.checkConflicts(ctx, d, p, log); err != nil {
		return e.fail(out, err)
	}

	status, err := e.inspector.ContainerStatus(ctx, p.ComposeProject, p.ExpectedServices)
	if err != nil {
		log.Debug("pre-start inspection failed, reconciling", "error", err)
	} else if status.UpToDate() {
		restart, err := e.refresh(ctx, d, p, out)
		if err != nil {
			return e.fail(out, err)
		}
		if !restart {
			out.Status = status
			out.moveTo(StateAlreadyUpToDate)
			e.saveMarker(d, p, log)
			e.console.Success(fmt.Sprintf("%s is already up to date (%d services running)", p.ComposeProject, len(status.Expected)))
			return out, nil
		}
		log.Info("secrets were generated for running containers, restarting")
	}

	out.moveTo(StateReconciling)
	composeEnv, bundle, err := e.reconcile(ctx, d, p, out, log)
	if err != nil {
		return e.fail(out, err)
	}

	out.moveTo(StateStarting)
	if err := e.start(ctx, p, composeEnv, out, log); err != nil {
		if out.State == StatePartiallyFailed {
			e.saveMarker(d, p, log)
		}
		return e.fail(out, err)
	}
	e.saveMarker(d, p, log)
	e.reportHealthy(d, p, out)

	if p.Mode == plan.Deployment && p.Backend.Kind == platform.Supabase {
		e.migrate(ctx, p, bundle, out)
	}
	return out, nil
}

// resolve runs the ResolvingMode phase.
func (e *Engine) resolve(ctx context.Context, out *Outcome, log *logging.Logger) (*config.ProjectDescriptor, *plan.Plan, error) {
	ctx, span := startPhase(ctx, "resolve")
	defer span.End()

	out.Mode = plan.ResolveMode(out.Environment)
	d, err := e.loadDescriptor()
	if err != nil {
		return nil, nil, err
	}
	out.ComposeProject = plan.ComposeProjectName(d.Name, out.Environment)

	if err := e.checkRuntime(ctx); err != nil {
		return nil, nil, err
	}

	backend := e.detectBackend()
	p, err := plan.Build(e.projectDir, out.Environment, d, backend)
	if errors.Is(err, plan.ErrNoTarget) {
		if err := e.offerTarget(ctx, d, out.Environment); err != nil {
			return nil, nil, err
		}
		p, err = plan.Build(e.projectDir, out.Environment, d, backend)
	}
	if err != nil {
		return nil, nil, err
	}

	if p.Target != nil && p.Target.RequiresOperatorEmail() {
		if _, err := e.EnsureOperatorEmail(ctx); err != nil {
			return nil, nil, err
		}
	}

	log.Info("plan resolved",
		"mode", p.Mode,
		"compose_project", p.ComposeProject,
		"overlays", len(p.Overlays),
		"backend", backend.Kind.String())
	return d, p, nil
}

// reconcile runs the Reconciling phase and returns the environment for
// the compose process.
func (e *Engine) reconcile(ctx context.Context, d *config.ProjectDescriptor, p *plan.Plan, out *Outcome, log *logging.Logger) (map[string]string, *secrets.Bundle, error) {
	ctx, span := startPhase(ctx, "reconcile")
	defer span.End()

	bundle, err := e.loadSecrets(p, out)
	if err != nil {
		return nil, nil, err
	}
	if err := e.refreshRouting(ctx, d, p, out); err != nil {
		return nil, nil, err
	}

	settings, err := e.store.LoadSettings()
	if err != nil {
		log.Warn("cannot read operator settings", "error", err)
	}
	return e.composeEnv(p, bundle, settings), bundle, nil
}

// refresh brings files up to date for containers that already run: the
// routing file follows parity.yaml and, in deployment, the secrets must
// still be present. restart is true when secrets had to be generated,
// since the running containers hold different ones.
func (e *Engine) refresh(ctx context.Context, d *config.ProjectDescriptor, p *plan.Plan, out *Outcome) (restart bool, err error) {
	ctx, span := startPhase(ctx, "refresh")
	defer span.End()

	if _, err := e.loadSecrets(p, out); err != nil {
		return false, err
	}
	if err := e.refreshRouting(ctx, d, p, out); err != nil {
		return false, err
	}
	if out.RoutingChanged {
		e.console.Info("Routing updated from " + config.DescriptorFile)
	}
	return out.SecretsGenerated > 0, nil
}

// loadSecrets returns the deployment secrets, generating missing ones.
// Development has none.
func (e *Engine) loadSecrets(p *plan.Plan, out *Outcome) (*secrets.Bundle, error) {
	if p.Mode != plan.Deployment {
		return nil, nil
	}
	b, generated, err := e.secrets.LoadOrGenerate(p.Environment)
	if err != nil {
		return nil, err
	}
	if generated {
		out.SecretsGenerated = len(b.Generated)
		e.console.Info(fmt.Sprintf("Generated %d secrets for %s in .env (keep this file backed up)", len(b.Generated), p.Environment))
		if e.metrics != nil {
			e.metrics.RecordSecretsGenerated(p.Environment, len(b.Generated))
		}
	}
	return &b, nil
}

// refreshRouting regenerates the routing file. It is rewritten only when
// its content changes.
func (e *Engine) refreshRouting(ctx context.Context, d *config.ProjectDescriptor, p *plan.Plan, out *Outcome) error {
	changed, certsOK, err := e.writeRouting(ctx, d, p.Environment, p.Backend, p.Target)
	if err != nil {
		return err
	}
	out.RoutingChanged = out.RoutingChanged || changed
	out.CertificatesAvailable = certsOK
	if p.Mode == plan.Development && !certsOK {
		out.warn("development is running HTTP-only")
	}
	return nil
}

// composeEnv assembles the variables the overlays interpolate.
func (e *Engine) composeEnv(p *plan.Plan, bundle *secrets.Bundle, settings config.Settings) map[string]string {
	env := map[string]string{
		"PARITY_ENV":     p.Environment,
		"PARITY_PROJECT": p.ComposeProject,
	}
	if bundle != nil {
		for k, v := range bundle.Env() {
			env[k] = v
		}
	}
	switch {
	case p.Target != nil:
		env["APP_DOMAIN"] = p.Target.AppDomain
		env["API_DOMAIN"] = p.Target.ResolvedAPIDomain()
		env["STUDIO_DOMAIN"] = p.Target.ResolvedStudioDomain()
		env["SSL_POLICY"] = string(p.Target.Policy())
		if settings.OperatorEmail != "" {
			env["ACME_EMAIL"] = settings.OperatorEmail
		}
	default:
		env["DEV_DOMAIN"] = e.runtime.DevDomain
		env["HOST_ALIAS"] = e.runtime.HostAlias
	}
	return env
}

// start runs the Starting phase. It leaves out in Healthy,
// PartiallyFailed, or Starting (the caller moves that to Failed).
func (e *Engine) start(ctx context.Context, p *plan.Plan, env map[string]string, out *Outcome, log *logging.Logger) error {
	ctx, span := startPhase(ctx, "start")
	defer span.End()

	spinner := e.console.Spinner("Starting " + p.ComposeProject)
	spinner.Start()
	_, upErr := e.executor.Up(ctx, p.Project(), compose.UpOptions{Env: env, RemoveOrphans: true})
	spinner.Stop()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return util.NewStackError(util.KindTotalStartup, "bring-up interrupted",
			fmt.Sprintf("Containers that already started keep running. Re-run: parity up %s", p.Environment), ctxErr)
	}

	status, statusErr := e.inspector.ContainerStatus(ctx, p.ComposeProject, p.ExpectedServices)
	out.Status = status
	if statusErr != nil {
		log.Warn("post-start inspection failed", "error", statusErr)
		if upErr != nil {
			return util.NewStackError(util.KindTotalStartup,
				fmt.Sprintf("%s failed to start", p.ComposeProject),
				e.failureRemediation(p), upErr)
		}
		out.warn("container state could not be verified after start")
		out.moveTo(StateHealthy)
		return nil
	}

	switch {
	case upErr == nil && (status.AllRunning() || len(status.Expected) == 0):
		out.moveTo(StateHealthy)
		return nil
	case status.AnyRunning():
		out.moveTo(StatePartiallyFailed)
		running, failed := status.Running(), status.NotRunning()
		log.Warn("partial startup", "running", running, "failed", failed, "error", upErr)
		return util.NewStackError(util.KindPartialStartup,
			fmt.Sprintf("%d of %d services started; not running: %s",
				len(running), len(status.Expected), strings.Join(failed, ", ")),
			e.partialRemediation(p, failed), upErr)
	default:
		return util.NewStackError(util.KindTotalStartup,
			fmt.Sprintf("no %s services are running", p.ComposeProject),
			e.failureRemediation(p), upErr)
	}
}

func (e *Engine) partialRemediation(p *plan.Plan, failed []string) string {
	bin, lead := e.executor.Runtime().Binary()
	logs := strings.Join(append(append([]string{bin}, lead...), "-p", p.ComposeProject, "logs", strings.Join(failed, " ")), " ")
	return strings.Join([]string{
		"Inspect the failed services: " + logs,
		"Check state: parity status " + p.Environment,
		"Retry (running services are left alone): parity up " + p.Environment,
	}, "\n")
}

func (e *Engine) failureRemediation(p *plan.Plan) string {
	return strings.Join([]string{
		"Read the runtime output above for the first error",
		"Start clean: parity down " + p.Environment + " && parity up " + p.Environment,
	}, "\n")
}

// migrate runs the post-start migration. Failure is a warning.
func (e *Engine) migrate(ctx context.Context, p *plan.Plan, bundle *secrets.Bundle, out *Outcome) {
	ctx, span := startPhase(ctx, "migrate")
	defer span.End()

	target := migrate.Target{ProjectDir: p.ProjectDir, Port: e.runtime.DBPort}
	if bundle != nil {
		target.Password = bundle.Get(secrets.PostgresPassword)
	}
	result := e.migrator.Run(ctx, target)
	out.Migration = &result
	switch {
	case result.Warning != "":
		out.warn(result.Warning)
		e.console.Warning(result.Warning)
	case result.Applied:
		e.console.Success("Database migrations applied")
	}
}

// reportHealthy prints the routes an operator can open.
func (e *Engine) reportHealthy(d *config.ProjectDescriptor, p *plan.Plan, out *Outcome) {
	scheme, domain := "https", e.runtime.DevDomain
	if p.Target != nil {
		domain = p.Target.AppDomain
	} else if !out.CertificatesAvailable {
		scheme = "http"
	}
	var lines []string
	for _, svc := range d.Services {
		lines = append(lines, fmt.Sprintf("%s  %s://%s.%s", svc.Name, scheme, svc.Name, domain))
	}
	e.console.Success(fmt.Sprintf("%s is up", p.ComposeProject))
	if len(lines) > 0 {
		e.console.Box("Routes", strings.Join(lines, "\n"))
	}
}

// saveMarker records p as the running environment unless it already is.
func (e *Engine) saveMarker(d *config.ProjectDescriptor, p *plan.Plan, log *logging.Logger) {
	current, err := e.store.LoadMarker()
	if err == nil && current != nil && current.Matches(d.Name, p.Environment) && current.ComposeProject == p.ComposeProject {
		return
	}
	marker := config.RunningMarker{
		Project:        d.Name,
		Environment:    p.Environment,
		ComposeProject: p.ComposeProject,
		ProjectDir:     e.projectDir,
		StartedAt:      e.now().UTC(),
	}
	if err := e.store.SaveMarker(marker); err != nil {
		log.Warn("cannot record running environment", "error", err)
	}
}

// fail moves out to Cancelled or Failed unless it already ended.
func (e *Engine) fail(out *Outcome, err error) (*Outcome, error) {
	if !out.State.Terminal() {
		if errors.Is(err, util.ErrCancelled) {
			out.moveTo(StateCancelled)
		} else {
			out.moveTo(StateFailed)
		}
	}
	return out, err
}

// finish closes the root span and records metrics.
func (e *Engine) finish(span trace.Span, out *Outcome, err error, elapsed time.Duration, log *logging.Logger) {
	if err != nil && !out.State.Terminal() {
		e.fail(out, err)
	}

	span.SetAttributes(
		attribute.String("parity.mode", string(out.Mode)),
		attribute.String("parity.state", string(out.State)),
	)
	if err != nil && !errors.Is(err, util.ErrCancelled) && out.State != StatePartiallyFailed {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if e.metrics != nil {
		mode := string(out.Mode)
		if mode == "" {
			mode = "unknown"
		}
		e.metrics.RecordBringUp(mode, string(out.State), elapsed)
		if len(out.Status.Expected) > 0 {
			counts := make(map[string]int)
			for state, n := range out.Status.Counts() {
				counts[string(state)] = n
			}
			e.metrics.RecordContainers(counts)
		}
	}

	log.Info("bring-up finished", "state", out.State, "duration", elapsed.Round(time.Millisecond))
}

func startPhase(ctx context.Context, name string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "parity.phase."+name)
}
