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
	"time"
)

// Provider runs the actual entity behind a Service.  The default
// implementation is Process, which launches an operating system
// process; tests substitute their own.  The orchestrator promises not
// to call these methods concurrently for a single service, so
// implementers need not lock.
type Provider interface {
	// Start launches the service.  It blocks until the launch has
	// either succeeded or definitively failed; it does not wait for
	// the service to become ready.
	Start() error

	// Stop retires the service: a graceful termination request,
	// then a forced kill if the service is still alive after the
	// grace period.  Stopping a service that never started, or that
	// has already exited, is a no-op.
	Stop(grace time.Duration)

	// Alive reports whether the underlying entity is still running.
	Alive() bool

	// Pid returns the OS process ID, or 0 if there is none.
	Pid() int
}

// Registry records service instances and run outcomes across
// orchestrator invocations.  It replaces process-name matching: the
// next run retires previous instances by recorded PID, verified
// against the launch signature.
type Registry interface {
	// RecordService stores the live instance for a service name,
	// displacing any earlier record.
	RecordService(ctx context.Context, name string, pid int, signature string, startedAt time.Time) error

	// LookupService returns the recorded instance for a name.
	// ok is false when the name has no live record.
	LookupService(ctx context.Context, name string) (pid int, signature string, ok bool, err error)

	// MarkStopped clears the live record for a name.  Clearing a
	// name that has no record is not an error.
	MarkStopped(ctx context.Context, name string) error

	// SaveRun appends a run to the history.
	SaveRun(ctx context.Context, run *Run) error

	// RecentRuns returns up to n runs, newest first.
	RecentRuns(ctx context.Context, n int) ([]RunSummary, error)
}
