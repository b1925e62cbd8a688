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

package rest

import (
	"time"

	"github.com/dukebot/deployctl"
)

const (
	mimeJson = "application/json; charset=UTF-8"
)

var ok struct{}

// ServiceInfo is the wire form of one supervised service.
type ServiceInfo struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Depends   []string  `json:"depends,omitempty"`
	Address   string    `json:"address,omitempty"`
	LogPath   string    `json:"logPath,omitempty"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// LogChunk is a page of orchestrator log records plus the cursor to
// pass as ?since= on the next request.
type LogChunk struct {
	Records []deploy.LogRecord `json:"records"`
	Cursor  int64              `json:"cursor,string"`
}

// RunInfo is the wire form of a full run result.
type RunInfo struct {
	Outcome    string         `json:"outcome"`
	Step       string         `json:"step,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Services   []*ServiceInfo `json:"services,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
