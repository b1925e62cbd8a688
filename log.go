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
	"strings"
	"sync"
	"time"
)

const MaxLogRecords = 1000

// LogRecord is one retained line of the orchestrator log.  IDs are
// monotonic within a Log instance and usable as a cursor.
type LogRecord struct {
	ID   int64     `json:"id,string"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log is a bounded in-memory ring of orchestrator log lines, retained
// so the status API can serve recent history without touching the
// per-service log files (those belong to the child processes).
type Log struct {
	records []LogRecord
	next    int   // ring index of the next write
	id      int64 // last assigned record ID
	mu      sync.Mutex
}

// NewLog returns an empty ring with the default capacity.
func NewLog() *Log {
	return &Log{
		records: make([]LogRecord, MaxLogRecords),
		// Seed from the clock so cursors from a previous process
		// never alias records of this one.
		id: time.Now().UnixNano(),
	}
}

// Write implements io.Writer for use behind a log.Logger.  Input is
// line-oriented; embedded newlines produce multiple records.
func (l *Log) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	l.mu.Lock()
	for _, line := range lines {
		l.id++
		l.records[l.next] = LogRecord{ID: l.id, Time: time.Now(), Text: line}
		l.next = (l.next + 1) % len(l.records)
	}
	l.mu.Unlock()
	return len(b), nil
}

// Records returns retained records with ID greater than since, oldest
// first, along with the newest ID for use as the next cursor.  A since
// of 0 returns everything retained.
func (l *Log) Records(since int64) ([]LogRecord, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs := make([]LogRecord, 0, len(l.records))
	idx := l.next
	for i := 0; i < len(l.records); i++ {
		r := l.records[idx]
		idx = (idx + 1) % len(l.records)
		if r.ID > since {
			recs = append(recs, r)
		}
	}
	return recs, l.id
}
