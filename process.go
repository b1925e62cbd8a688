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
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// Process is the Provider for an operating system process launched
// from a ServiceSpec.  The child owns its log file exclusively; the
// orchestrator never writes to it.  The child is started in its own
// session so that it survives the orchestrator exiting after a
// one-shot run.
type Process struct {
	spec ServiceSpec
	cmd  *exec.Cmd
	done chan struct{} // closed when the child has been reaped
	err  error         // exit error, valid after done is closed
	mu   sync.Mutex
}

// NewProcess allocates a Process for a spec.  Nothing is launched
// until Start.
func NewProcess(spec ServiceSpec) *Process {
	return &Process{spec: spec}
}

func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		select {
		case <-p.done:
			// previous incarnation exited, allow relaunch
		default:
			return fmt.Errorf("%w: %s already running", ErrLaunchFailed, p.spec.Name)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p.spec.LogPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	logf, err := os.OpenFile(p.spec.LogPath,
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	cmd := exec.Command(p.spec.Command[0], p.spec.Command[1:]...)
	cmd.Dir = p.spec.Dir
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.Env = os.Environ()
	for k, v := range p.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// New session: the child must not share our controlling terminal
	// or die with us when the CI-invoked run exits.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		logf.Close()
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	// The child holds its own copy of the log descriptor.
	logf.Close()

	p.cmd = cmd
	p.done = make(chan struct{})
	done := p.done
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

func (p *Process) Stop(grace time.Duration) {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}

	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(grace):
	}
	cmd.Process.Kill()
	<-done
}

func (p *Process) Alive() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// ExitErr returns the exit error once the process has been reaped.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// TerminatePid retires a process recorded by an earlier run.  The PID
// is verified against the recorded launch signature before any signal
// is sent, so a recycled PID is never killed by mistake.  A dead or
// mismatched PID is a no-op: stopping a service that is not running is
// never an error.
func TerminatePid(pid int, signature string, grace time.Duration) error {
	if pid <= 0 || !pidMatches(pid, signature) {
		return nil
	}
	syscall.Kill(pid, syscall.SIGTERM)
	if waitPidGone(pid, grace) {
		return nil
	}
	syscall.Kill(pid, syscall.SIGKILL)
	if waitPidGone(pid, time.Second) {
		return nil
	}
	return fmt.Errorf("%w: pid %d", ErrStopTimeout, pid)
}

func pidAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// pidMatches reports whether pid is alive and its argv matches the
// recorded launch signature.  We are not the parent of processes left
// over from a previous run, so /proc is the only identity check
// available.
func pidMatches(pid int, signature string) bool {
	if !pidAlive(pid) {
		return false
	}
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return false
	}
	cmdline := string(raw)
	for len(cmdline) > 0 && cmdline[len(cmdline)-1] == 0 {
		cmdline = cmdline[:len(cmdline)-1]
	}
	return cmdline == signature
}

// waitPidGone polls for process exit.  We cannot select on a process
// we did not spawn, so a short bounded poll is the best we can do.
func waitPidGone(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !pidAlive(pid)
}
