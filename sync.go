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
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// stepRunner performs the pre-flight steps of a run: source sync and
// dependency install.  Tests substitute their own.
type stepRunner interface {
	Sync(ctx context.Context) error
	Install(ctx context.Context) error
}

// gitSteps syncs a git working tree and runs the manifest install
// command.  Both abort the run before any running service is touched:
// old instances must keep serving if new code cannot be obtained.
type gitSteps struct {
	dir     string
	remote  string
	branch  string
	install []string
	logw    io.Writer // command output, fanned into the orchestrator log
}

func newGitSteps(m Manifest, logw io.Writer) *gitSteps {
	return &gitSteps{
		dir:     m.WorkDir,
		remote:  m.Source.Remote,
		branch:  m.Source.Branch,
		install: m.Install,
		logw:    logw,
	}
}

// Sync brings the working tree to the tip of the deploy branch.  A
// dirty tree is refused rather than clobbered: local edits on the
// deploy host are a signal somebody is debugging in place.
func (g *gitSteps) Sync(ctx context.Context) error {
	out, err := g.run(ctx, "git", "status", "--porcelain")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if strings.TrimSpace(out) != "" {
		return fmt.Errorf("%w: working tree at %s is dirty", ErrSyncFailed, g.dir)
	}
	if _, err := g.run(ctx, "git", "fetch", g.remote, g.branch); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	ref := g.remote + "/" + g.branch
	if _, err := g.run(ctx, "git", "reset", "--hard", ref); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}

// Install applies the dependency manifest.  No install command means
// nothing to do.
func (g *gitSteps) Install(ctx context.Context) error {
	if len(g.install) == 0 {
		return nil
	}
	if _, err := g.run(ctx, g.install[0], g.install[1:]...); err != nil {
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	return nil
}

// run executes a command in the work directory, teeing output to the
// orchestrator log and returning it for inspection.  Failures include
// the tail of stderr, which is what git actually says when it breaks.
func (g *gitSteps) run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = g.dir
	var buf bytes.Buffer
	out := io.MultiWriter(&buf, g.logw)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("%s %s: %v: %s",
			name, strings.Join(args, " "), err, tail(buf.String(), 300))
	}
	return buf.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
