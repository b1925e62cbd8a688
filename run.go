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
	"fmt"
	"time"
)

// Outcome is the terminal disposition of a deployment run.
type Outcome string

const (
	// OutcomeSuccess means every service reached Ready.
	OutcomeSuccess Outcome = "success"
	// OutcomePartialFailure means the run proceeded past sync and
	// install but not every service reached Ready.
	OutcomePartialFailure Outcome = "partial-failure"
	// OutcomeFailure means the run aborted before touching any
	// running service.
	OutcomeFailure Outcome = "failure"
)

// Step identifies a phase of a deployment run.
type Step string

const (
	StepSync    Step = "sync"
	StepInstall Step = "install"
	StepStop    Step = "stop"
	StepStart   Step = "start"
)

// StepError records which phase of a run failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ServiceResult is the per-service portion of a run result.
type ServiceResult struct {
	Name      string
	State     State
	PID       int
	Depends   []string
	StartedAt time.Time
	Reason    string
	Err       error
}

// Run is the record of one deployment run.  It is terminal when
// returned by Orchestrator.Run: every service has reached Ready,
// Failed, or Stopped, or the run aborted beforehand.
type Run struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Err        *StepError      // set when the run aborted at sync or install
	Services   []ServiceResult // manifest order
}

// ExitCode maps the outcome to a process exit code for the CI trigger.
func (r *Run) ExitCode() int {
	if r.Outcome == OutcomeSuccess {
		return 0
	}
	return 1
}

func (r *Run) finish() {
	r.FinishedAt = time.Now()
	if r.Err != nil {
		r.Outcome = OutcomeFailure
		return
	}
	r.Outcome = OutcomeSuccess
	for _, s := range r.Services {
		if s.State != StateReady {
			r.Outcome = OutcomePartialFailure
			return
		}
	}
}

// RunSummary is a condensed run record, as persisted in the registry
// and served over the status API.
type RunSummary struct {
	ID         uint      `json:"id"`
	Outcome    Outcome   `json:"outcome"`
	Step       Step      `json:"step,omitempty"` // failed step, when aborted
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
