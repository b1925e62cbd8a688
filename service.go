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
	"sync"
	"time"
)

// State is the lifecycle state of a supervised service.
//
//	Stopped ──> Starting ──> Ready
//	               │           │
//	               v           v
//	             Failed <── (monitor)
//
// Starting means the process has been launched but has not yet
// accepted a connection.  Ready and Failed are the terminal states of
// a run; Stopped is both the initial state and the result of a
// deliberate retirement.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// terminal reports whether a run is done with this state.
func (s State) terminal() bool {
	return s == StateReady || s == StateFailed || s == StateStopped
}

// Service pairs a ServiceSpec with the Provider running it and tracks
// the observed lifecycle state.  At most one Service exists per spec
// name within an orchestrator, and at most one instance per name is
// ever Ready at a time: a new instance is not launched until the
// previous one has fully exited.
type Service struct {
	spec ServiceSpec
	prov Provider

	mu        sync.Mutex
	state     State
	reason    string
	err       error
	startedAt time.Time
	gate      chan struct{} // closed when the state turns terminal for this run
	restarts  []time.Time   // recent restart stamps, serve-mode rate limiting
}

func newService(spec ServiceSpec, prov Provider) *Service {
	return &Service{
		spec:  spec,
		prov:  prov,
		state: StateStopped,
		gate:  make(chan struct{}),
	}
}

// Name returns the service name from the spec.
func (s *Service) Name() string {
	return s.spec.Name
}

// Spec returns the immutable spec the service was built from.
func (s *Service) Spec() ServiceSpec {
	return s.spec
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the service is currently Ready.
func (s *Service) Ready() bool {
	return s.State() == StateReady
}

func (s *Service) setState(state State, reason string, err error) {
	s.mu.Lock()
	s.state = state
	s.reason = reason
	s.err = err
	if state == StateStarting {
		s.startedAt = time.Now()
	}
	gate := s.gate
	s.mu.Unlock()

	if state.terminal() && state != StateStopped {
		select {
		case <-gate:
		default:
			close(gate)
		}
	}
}

// await blocks until the service reaches a terminal state for this
// run, or the done channel fires.  It returns the state observed.
func (s *Service) await(done <-chan struct{}) State {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	select {
	case <-gate:
	case <-done:
	}
	return s.State()
}

// resetGate arms a fresh gate for a restart attempt.
func (s *Service) resetGate() {
	s.mu.Lock()
	s.gate = make(chan struct{})
	s.mu.Unlock()
}

// tooQuickly reports whether the service has been restarted more than
// limit times inside window.  Used by the serve-mode monitor to stop a
// crash-looping service from being relaunched forever.
func (s *Service) tooQuickly(limit int, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-window)
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = kept
	if len(s.restarts) >= limit {
		return true
	}
	s.restarts = append(s.restarts, time.Now())
	return false
}

// Result snapshots the service for run results and the status API.
func (s *Service) Result() ServiceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServiceResult{
		Name:      s.spec.Name,
		State:     s.state,
		PID:       s.prov.Pid(),
		Depends:   append([]string(nil), s.spec.DependsOn...),
		StartedAt: s.startedAt,
		Reason:    s.reason,
		Err:       s.err,
	}
}
