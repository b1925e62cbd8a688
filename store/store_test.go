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

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dukebot/deployctl"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func TestServiceLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, ok, err := s.LookupService(ctx, "api")
	require.NoError(t, err)
	assert.False(t, ok)

	started := time.Now()
	err = s.RecordService(ctx, "api", 1234, "python3\x00app.py", started)
	require.NoError(t, err)

	pid, sig, ok, err := s.LookupService(ctx, "api")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1234, pid)
	assert.Equal(t, "python3\x00app.py", sig)

	// new instance replaces the row, not duplicates it
	err = s.RecordService(ctx, "api", 5678, "python3\x00app.py", time.Now())
	require.NoError(t, err)
	pid, _, ok, err = s.LookupService(ctx, "api")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5678, pid)

	rows, err := gorm.G[ServiceRecord](s.db).Where("name = ?", "api").Find(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, s.MarkStopped(ctx, "api"))
	_, _, ok, err = s.LookupService(ctx, "api")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkStoppedUnknown(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.MarkStopped(context.Background(), "ghost"))
}

func TestRunHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	aborted := &deploy.Run{
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now().Add(-time.Minute),
		Outcome:    deploy.OutcomeFailure,
		Err: &deploy.StepError{
			Step: deploy.StepSync,
			Err:  errors.New("working tree dirty"),
		},
	}
	require.NoError(t, s.SaveRun(ctx, aborted))

	good := &deploy.Run{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Outcome:    deploy.OutcomeSuccess,
		Services: []deploy.ServiceResult{
			{Name: "api", State: deploy.StateReady, PID: 1234},
			{Name: "dashboard", State: deploy.StateReady, PID: 1240},
		},
	}
	require.NoError(t, s.SaveRun(ctx, good))

	runs, err = s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// newest first
	assert.Equal(t, deploy.OutcomeSuccess, runs[0].Outcome)
	assert.Equal(t, deploy.OutcomeFailure, runs[1].Outcome)
	assert.Equal(t, deploy.StepSync, runs[1].Step)
	assert.Contains(t, runs[1].Error, "dirty")

	runs, err = s.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, deploy.OutcomeSuccess, runs[0].Outcome)
}
