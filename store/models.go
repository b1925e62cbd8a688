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
	"time"

	"gorm.io/gorm"
)

// ServiceRecord tracks the last launched instance of a named service.
// One row per service name; the signature is the NUL-joined argv used
// to confirm a pid still belongs to us before signalling it.
// No DeletedAt here: rows are replaced outright on relaunch, and a
// soft-deleted row would trip the unique index on Name.
type ServiceRecord struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"uniqueIndex"`
	PID       int
	Signature string
	Running   bool
	StartedAt time.Time
	UpdatedAt time.Time
}

// RunRecord is one deployment run outcome.
type RunRecord struct {
	gorm.Model
	Outcome    string
	Step       string // pre-flight step that aborted the run, if any
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Services   []RunServiceRecord
}

// RunServiceRecord is one service's final state within a run.
type RunServiceRecord struct {
	gorm.Model
	RunRecordID uint
	Name        string
	State       string
	PID         int
	Reason      string
	Error       string
}
