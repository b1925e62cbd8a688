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
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitOrSkip(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@localhost",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@localhost")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// setupClone makes an upstream repo with one commit and a clone of it,
// returning both paths.
func setupClone(t *testing.T) (upstream, clone string) {
	t.Helper()
	gitOrSkip(t)
	base := t.TempDir()
	upstream = filepath.Join(base, "upstream")
	clone = filepath.Join(base, "clone")

	require.NoError(t, os.Mkdir(upstream, 0755))
	git(t, upstream, "init", "-b", "main")
	require.NoError(t,
		os.WriteFile(filepath.Join(upstream, "app.py"), []byte("v1\n"), 0644))
	git(t, upstream, "add", "app.py")
	git(t, upstream, "commit", "-m", "v1")
	git(t, base, "clone", upstream, clone)
	return upstream, clone
}

func cloneSteps(clone string, logw *bytes.Buffer) *gitSteps {
	m := Manifest{
		WorkDir: clone,
		Source:  SourceSpec{Remote: "origin", Branch: "main"},
	}
	return newGitSteps(m, logw)
}

func TestSyncPullsNewCommits(t *testing.T) {
	upstream, clone := setupClone(t)
	var logw bytes.Buffer
	g := cloneSteps(clone, &logw)

	// upstream moves ahead
	require.NoError(t,
		os.WriteFile(filepath.Join(upstream, "app.py"), []byte("v2\n"), 0644))
	git(t, upstream, "add", "app.py")
	git(t, upstream, "commit", "-m", "v2")

	require.NoError(t, g.Sync(context.Background()))

	data, err := os.ReadFile(filepath.Join(clone, "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(data))
}

func TestSyncRefusesDirtyTree(t *testing.T) {
	_, clone := setupClone(t)
	var logw bytes.Buffer
	g := cloneSteps(clone, &logw)

	require.NoError(t,
		os.WriteFile(filepath.Join(clone, "app.py"), []byte("hacked\n"), 0644))

	err := g.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncFailed))
	assert.Contains(t, err.Error(), "dirty")

	// local edit untouched
	data, _ := os.ReadFile(filepath.Join(clone, "app.py"))
	assert.Equal(t, "hacked\n", string(data))
}

func TestSyncOutsideRepo(t *testing.T) {
	gitOrSkip(t)
	var logw bytes.Buffer
	g := cloneSteps(t.TempDir(), &logw)

	err := g.Sync(context.Background())
	assert.True(t, errors.Is(err, ErrSyncFailed))
}

func TestInstall(t *testing.T) {
	dir := t.TempDir()
	var logw bytes.Buffer

	t.Run("runs the install command", func(t *testing.T) {
		g := newGitSteps(Manifest{
			WorkDir: dir,
			Install: []string{"/bin/sh", "-c", "echo installing deps"},
		}, &logw)
		require.NoError(t, g.Install(context.Background()))
		assert.Contains(t, logw.String(), "installing deps")
	})

	t.Run("propagates failure", func(t *testing.T) {
		g := newGitSteps(Manifest{
			WorkDir: dir,
			Install: []string{"/bin/sh", "-c", "echo broken >&2; exit 3"},
		}, &logw)
		err := g.Install(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInstallFailed))
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("no install command is a no-op", func(t *testing.T) {
		g := newGitSteps(Manifest{WorkDir: dir}, &logw)
		assert.NoError(t, g.Install(context.Background()))
	})
}
