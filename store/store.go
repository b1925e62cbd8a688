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

// Package store persists the service registry and run history in a
// SQLite database, so successive deployctl invocations can find and
// retire the instances their predecessors launched.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dukebot/deployctl"
)

// Store implements deploy.Registry on a SQLite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the registry database at path.
// Use ":memory:" for an ephemeral registry.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&ServiceRecord{}, &RunRecord{}, &RunServiceRecord{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// RecordService upserts the row for name with a freshly launched
// instance.
func (s *Store) RecordService(ctx context.Context, name string, pid int, signature string, startedAt time.Time) error {
	rec := ServiceRecord{
		Name:      name,
		PID:       pid,
		Signature: signature,
		Running:   true,
		StartedAt: startedAt,
	}
	// one transaction: a crash must not lose the row between the
	// delete and the create, or the instance can never be retired
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := gorm.G[ServiceRecord](tx).Where("name = ?", name).Delete(ctx)
		if err != nil {
			return err
		}
		return gorm.G[ServiceRecord](tx).Create(ctx, &rec)
	})
}

// LookupService returns the recorded running instance for name.
// ok is false when no running instance is on record.
func (s *Store) LookupService(ctx context.Context, name string) (int, string, bool, error) {
	rec, err := gorm.G[ServiceRecord](s.db).
		Where("name = ? AND running = ?", name, true).
		First(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return rec.PID, rec.Signature, true, nil
}

// MarkStopped clears the running flag for name.  Unknown names are a
// no-op.
func (s *Store) MarkStopped(ctx context.Context, name string) error {
	_, err := gorm.G[ServiceRecord](s.db).
		Where("name = ?", name).
		Update(ctx, "Running", false)
	return err
}

// SaveRun records a finished run and its per-service outcomes.
func (s *Store) SaveRun(ctx context.Context, run *deploy.Run) error {
	rec := RunRecord{
		Outcome:    string(run.Outcome),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Err != nil {
		rec.Step = string(run.Err.Step)
		rec.Error = run.Err.Err.Error()
	}
	for _, sr := range run.Services {
		rsr := RunServiceRecord{
			Name:   sr.Name,
			State:  string(sr.State),
			PID:    sr.PID,
			Reason: sr.Reason,
		}
		if sr.Err != nil {
			rsr.Error = sr.Err.Error()
		}
		rec.Services = append(rec.Services, rsr)
	}
	return gorm.G[RunRecord](s.db).Create(ctx, &rec)
}

// RecentRuns returns up to n run summaries, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]deploy.RunSummary, error) {
	recs, err := gorm.G[RunRecord](s.db).
		Order("id DESC").
		Limit(n).
		Find(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]deploy.RunSummary, len(recs))
	for i, r := range recs {
		out[i] = deploy.RunSummary{
			ID:         r.ID,
			Outcome:    deploy.Outcome(r.Outcome),
			Step:       deploy.Step(r.Step),
			Error:      r.Error,
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
		}
	}
	return out, nil
}
