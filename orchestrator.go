// Copyright 2026 The Deployctl Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package deploy

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	monitorInterval = 5 * time.Second
	restartLimit    = 5
	restartWindow   = time.Minute
)

// Orchestrator drives deployment runs for one manifest and supervises
// the services the latest run brought up.  A single orchestrating
// goroutine walks the pre-flight steps; stop and start fan out across
// services, with dependency order enforced by per-service gates.
type Orchestrator struct {
	manifest Manifest
	ordered  []ServiceSpec // dependency order, for reverse-order stops

	registry     Registry // optional; nil disables persistence
	steps        stepRunner
	monitorEvery time.Duration
	newProvider  func(ServiceSpec) Provider
	checkReady   func(ctx context.Context, spec ServiceSpec) error
	termPrev     func(pid int, signature string, grace time.Duration) error

	ring   *Log
	mlog   *MultiWriter
	logger *log.Logger

	mu      sync.Mutex
	svcs    map[string]*Service
	list    []*Service // manifest order
	lastRun *Run
}

// New builds an orchestrator for a validated manifest.
func New(m Manifest) (*Orchestrator, error) {
	ordered, err := topoOrder(m.Services)
	if err != nil {
		return nil, err
	}
	ring := NewLog()
	mlog := NewMultiWriter(ring)
	o := &Orchestrator{
		manifest: m,
		ordered:  ordered,
		ring:     ring,
		mlog:     mlog,
		logger:   log.New(mlog, "", 0),
		svcs:     make(map[string]*Service),
	}
	o.monitorEvery = monitorInterval
	o.steps = newGitSteps(m, mlog)
	o.newProvider = func(spec ServiceSpec) Provider { return NewProcess(spec) }
	o.checkReady = func(ctx context.Context, spec ServiceSpec) error {
		return WaitReady(ctx, spec.DialAddr(), time.Duration(spec.ReadyTimeout))
	}
	o.termPrev = TerminatePid
	return o, nil
}

// SetRegistry attaches the persistent registry consulted for previous
// instances and updated with run outcomes.
func (o *Orchestrator) SetRegistry(r Registry) {
	o.registry = r
}

// SetLogWriter adds a sink for the orchestrator log, typically stderr
// or a run log file.  The in-memory ring is always attached.
func (o *Orchestrator) SetLogWriter(w io.Writer) {
	o.mlog.Add(w)
}

// Manifest returns the manifest the orchestrator was built from.
func (o *Orchestrator) Manifest() Manifest {
	return o.manifest
}

func (o *Orchestrator) logf(format string, v ...interface{}) {
	o.logger.Printf(format, v...)
}

// Run performs one deployment run and always returns a terminal Run.
// Sync or install failures abort before any running service is
// touched.  Cancelling ctx terminates services still Starting before
// Run returns; services already Ready are left running.
func (o *Orchestrator) Run(ctx context.Context) *Run {
	run := &Run{StartedAt: time.Now()}
	o.logf("=== Deployment run started ===")

	if err := o.steps.Sync(ctx); err != nil {
		o.logf("Aborting run, sync failed: %v", err)
		run.Err = &StepError{Step: StepSync, Err: err}
		o.finishRun(ctx, run)
		return run
	}
	o.logf("Source synced to %s/%s",
		o.manifest.Source.Remote, o.manifest.Source.Branch)

	if err := o.steps.Install(ctx); err != nil {
		o.logf("Aborting run, install failed: %v", err)
		run.Err = &StepError{Step: StepInstall, Err: err}
		o.finishRun(ctx, run)
		return run
	}
	o.logf("Dependencies installed")

	svcs := make([]*Service, 0, len(o.manifest.Services))
	byName := make(map[string]*Service, len(o.manifest.Services))
	for _, spec := range o.manifest.Services {
		svc := newService(spec, o.newProvider(spec))
		svcs = append(svcs, svc)
		byName[spec.Name] = svc
	}
	o.mu.Lock()
	o.svcs = byName
	o.list = svcs
	o.mu.Unlock()

	// Retire previous instances.  Independent services in parallel;
	// a missing previous instance is a no-op.  A previous instance
	// that cannot be retired fails the service up front: launching a
	// replacement beside it would collide on the port, and the
	// readiness probe could then vouch for the wrong instance.
	var wg sync.WaitGroup
	for _, svc := range svcs {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			if err := o.stopPrevious(ctx, svc.spec); err != nil {
				svc.setState(StateFailed, "Previous instance not retired", err)
			}
		}(svc)
	}
	wg.Wait()

	// Bring everything up.  Each service gets a goroutine; dependents
	// block on their dependencies' gates, so unrelated services
	// proceed concurrently while order between related ones holds.
	for _, svc := range svcs {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			o.bringUp(ctx, svc)
		}(svc)
	}
	wg.Wait()

	run.Services = lo.Map(svcs, func(s *Service, _ int) ServiceResult {
		return s.Result()
	})
	o.finishRun(ctx, run)
	return run
}

func (o *Orchestrator) finishRun(ctx context.Context, run *Run) {
	run.finish()
	o.logf("=== Deployment run finished: %s ===", run.Outcome)
	if o.registry != nil {
		if err := o.registry.SaveRun(ctx, run); err != nil {
			o.logf("Failed to record run: %v", err)
		}
	}
	o.mu.Lock()
	o.lastRun = run
	o.mu.Unlock()
}

// stopPrevious retires the instance the registry recorded for spec, if
// it is still alive and its argv matches the recorded signature.  A
// non-nil error means the previous instance may still be running and
// the service must not be relaunched this run.
func (o *Orchestrator) stopPrevious(ctx context.Context, spec ServiceSpec) error {
	if o.registry == nil {
		return nil
	}
	pid, sig, ok, err := o.registry.LookupService(ctx, spec.Name)
	if err != nil {
		o.logf("[%s] Registry lookup failed: %v", spec.Name, err)
		return err
	}
	if !ok {
		return nil
	}
	o.logf("[%s] Stopping previous instance, pid %d", spec.Name, pid)
	if err := o.termPrev(pid, sig, time.Duration(spec.GracePeriod)); err != nil {
		// Keep the record: the pid is still out there, and the next
		// run has to find it again.
		o.logf("[%s] Failed to stop previous instance: %v", spec.Name, err)
		return err
	}
	if err := o.registry.MarkStopped(ctx, spec.Name); err != nil {
		// The instance is gone; a stale record only costs the next
		// run a no-op TerminatePid on a dead pid.
		o.logf("[%s] Registry update failed: %v", spec.Name, err)
	}
	return nil
}

// bringUp waits for the service's dependencies and then starts it.  A
// dependency that ends the run in any state but Ready fails the
// dependent without launching anything.
func (o *Orchestrator) bringUp(ctx context.Context, svc *Service) {
	if svc.State() == StateFailed {
		// retirement of the previous instance already failed it
		return
	}
	for _, dep := range svc.spec.DependsOn {
		d := o.service(dep)
		if d == nil {
			// validation makes this unreachable, but fail closed
			svc.setState(StateFailed, "Unknown dependency "+dep,
				fmt.Errorf("%w: %s", ErrUnmetDepend, dep))
			return
		}
		if st := d.await(ctx.Done()); st != StateReady {
			svc.setState(StateFailed, "Dependency "+dep+" not ready",
				fmt.Errorf("%w: %s is %s", ErrUnmetDepend, dep, st))
			o.logf("[%s] Skipped: dependency %s is %s", svc.Name(), dep, st)
			return
		}
	}
	if ctx.Err() != nil {
		svc.setState(StateFailed, "Run cancelled", ctx.Err())
		return
	}
	o.startService(ctx, svc)
}

// startService launches a service and walks it through the readiness
// gate.  An instance that never becomes ready is terminated rather
// than left half-up on its port.
func (o *Orchestrator) startService(ctx context.Context, svc *Service) {
	spec := svc.spec
	svc.setState(StateStarting, "Launching", nil)
	o.logf("[%s] Starting: %s", spec.Name, strings.Join(spec.Command, " "))

	if err := svc.prov.Start(); err != nil {
		svc.setState(StateFailed, "Launch failed", err)
		o.logf("[%s] Launch failed: %v", spec.Name, err)
		return
	}
	pid := svc.prov.Pid()
	o.logf("[%s] Launched, pid %d, log %s", spec.Name, pid, spec.LogPath)
	if o.registry != nil {
		err := o.registry.RecordService(ctx, spec.Name, pid,
			spec.Signature(), time.Now())
		if err != nil {
			o.logf("[%s] Registry update failed: %v", spec.Name, err)
		}
	}

	if err := o.checkReady(ctx, spec); err != nil {
		svc.prov.Stop(time.Duration(spec.GracePeriod))
		if o.registry != nil {
			o.registry.MarkStopped(ctx, spec.Name)
		}
		svc.setState(StateFailed, "Never became ready", err)
		o.logf("[%s] Failed readiness on %s: %v", spec.Name, spec.DialAddr(), err)
		return
	}
	svc.setState(StateReady, "Ready", nil)
	o.logf("[%s] Ready on %s", spec.Name, spec.Addr())
}

// StopAll retires every service of the manifest in reverse dependency
// order: supervised instances through their providers, instances from
// earlier invocations through the registry.
func (o *Orchestrator) StopAll(ctx context.Context) {
	for i := len(o.ordered) - 1; i >= 0; i-- {
		spec := o.ordered[i]
		if svc := o.service(spec.Name); svc != nil && svc.prov.Alive() {
			o.logf("[%s] Stopping", spec.Name)
			svc.prov.Stop(time.Duration(spec.GracePeriod))
			svc.setState(StateStopped, "Stopped", nil)
			if o.registry != nil {
				o.registry.MarkStopped(ctx, spec.Name)
			}
			continue
		}
		o.stopPrevious(ctx, spec)
	}
}

// StopService stops one supervised service by name.
func (o *Orchestrator) StopService(ctx context.Context, name string) error {
	svc := o.service(name)
	if svc == nil {
		return ErrNoService
	}
	if !svc.prov.Alive() {
		return ErrNotRunning
	}
	o.logf("[%s] Stopping", name)
	svc.prov.Stop(time.Duration(svc.spec.GracePeriod))
	svc.setState(StateStopped, "Stopped by operator", nil)
	if o.registry != nil {
		o.registry.MarkStopped(ctx, name)
	}
	return nil
}

// RestartService stops and relaunches one supervised service,
// including its readiness gate.
func (o *Orchestrator) RestartService(ctx context.Context, name string) error {
	svc := o.service(name)
	if svc == nil {
		return ErrNoService
	}
	o.logf("[%s] Restarting", name)
	if svc.prov.Alive() {
		svc.prov.Stop(time.Duration(svc.spec.GracePeriod))
	}
	svc.resetGate()
	o.startService(ctx, svc)
	if st := svc.State(); st != StateReady {
		return fmt.Errorf("restart of %s failed: %s", name, st)
	}
	return nil
}

// Monitor watches supervised services until ctx is cancelled, in serve
// mode.  A Ready service whose process has exited is marked Failed; if
// its spec opts into Restart it is relaunched, rate-limited so a
// crash-looping service cannot flap forever.
func (o *Orchestrator) Monitor(ctx context.Context) {
	ticker := time.NewTicker(o.monitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, svc := range o.services() {
			if svc.State() != StateReady || svc.prov.Alive() {
				continue
			}
			o.logf("[%s] Exited unexpectedly", svc.Name())
			svc.setState(StateFailed, "Process exited", ErrNotRunning)
			if o.registry != nil {
				o.registry.MarkStopped(ctx, svc.Name())
			}
			if svc.spec.Restart {
				o.heal(ctx, svc)
			}
		}
	}
}

func (o *Orchestrator) heal(ctx context.Context, svc *Service) {
	if svc.tooQuickly(restartLimit, restartWindow) {
		o.logf("[%s] %v", svc.Name(), ErrRateLimited)
		return
	}
	o.logf("[%s] Attempting restart", svc.Name())
	svc.resetGate()
	o.startService(ctx, svc)
}

func (o *Orchestrator) service(name string) *Service {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.svcs[name]
}

func (o *Orchestrator) services() []*Service {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Service(nil), o.list...)
}

// Services snapshots every supervised service in manifest order.
func (o *Orchestrator) Services() []ServiceResult {
	return lo.Map(o.services(), func(s *Service, _ int) ServiceResult {
		return s.Result()
	})
}

// ServiceResult snapshots one service by name.
func (o *Orchestrator) ServiceResult(name string) (ServiceResult, bool) {
	svc := o.service(name)
	if svc == nil {
		return ServiceResult{}, false
	}
	return svc.Result(), true
}

// LogRecords returns retained orchestrator log lines after the cursor.
func (o *Orchestrator) LogRecords(since int64) ([]LogRecord, int64) {
	return o.ring.Records(since)
}

// LastRun returns the most recent run result, or nil before any run.
func (o *Orchestrator) LastRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}
