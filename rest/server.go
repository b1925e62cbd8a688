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

// Package rest exposes a supervised deployment over HTTP, for status
// checks and operator actions while deployctl runs in serve mode, and
// a typed client for the same API.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dukebot/deployctl"
)

// Supervisor is the part of deploy.Orchestrator the handler drives.
type Supervisor interface {
	Manifest() deploy.Manifest
	Services() []deploy.ServiceResult
	ServiceResult(name string) (deploy.ServiceResult, bool)
	RestartService(ctx context.Context, name string) error
	StopService(ctx context.Context, name string) error
	LogRecords(since int64) ([]deploy.LogRecord, int64)
	LastRun() *deploy.Run
}

// History serves past run summaries.  It may be nil when no registry
// is attached.
type History interface {
	RecentRuns(ctx context.Context, n int) ([]deploy.RunSummary, error)
}

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s    Supervisor
	hist History
	r    *mux.Router
	log  zerolog.Logger
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func (h *Handler) info(r deploy.ServiceResult) *ServiceInfo {
	info := &ServiceInfo{
		Name:      r.Name,
		State:     string(r.State),
		PID:       r.PID,
		Depends:   r.Depends,
		StartedAt: r.StartedAt,
		Reason:    r.Reason,
	}
	if r.Err != nil {
		info.Error = r.Err.Error()
	}
	for _, spec := range h.s.Manifest().Services {
		if spec.Name == r.Name {
			info.Address = spec.Addr()
			info.LogPath = spec.LogPath
			break
		}
	}
	return info
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	svcs := h.s.Services()
	l := make([]*ServiceInfo, 0, len(svcs))
	for _, svc := range svcs {
		l = append(l, h.info(svc))
	}
	h.writeJson(w, l)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]
	if res, found := h.s.ServiceResult(name); found {
		h.writeJson(w, h.info(res))
	} else {
		h.writeError(w, &Error{http.StatusNotFound, "Service not found"})
	}
}

func (h *Handler) restartService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]
	if err := h.s.RestartService(r.Context(), name); err == deploy.ErrNoService {
		h.writeError(w, &Error{http.StatusNotFound, "Service not found"})
	} else if err != nil {
		h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) stopService(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["service"]
	if err := h.s.StopService(r.Context(), name); err == deploy.ErrNoService {
		h.writeError(w, &Error{http.StatusNotFound, "Service not found"})
	} else if err != nil {
		h.writeError(w, &Error{http.StatusBadRequest, err.Error()})
	} else {
		h.writeJson(w, ok)
	}
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad cursor"})
			return
		}
		since = v
	}
	recs, cursor := h.s.LogRecords(since)
	h.writeJson(w, &LogChunk{Records: recs, Cursor: cursor})
}

func (h *Handler) getRuns(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		h.writeError(w, &Error{http.StatusNotFound, "No run history"})
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad limit"})
			return
		}
		limit = v
	}
	runs, err := h.hist.RecentRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.writeJson(w, runs)
}

func (h *Handler) getLastRun(w http.ResponseWriter, r *http.Request) {
	run := h.s.LastRun()
	if run == nil {
		h.writeError(w, &Error{http.StatusNotFound, "No run yet"})
		return
	}
	h.writeJson(w, h.runInfo(run))
}

func (h *Handler) runInfo(run *deploy.Run) *RunInfo {
	info := &RunInfo{
		Outcome:    string(run.Outcome),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Err != nil {
		info.Step = string(run.Err.Step)
		info.Error = run.Err.Err.Error()
	}
	for _, sr := range run.Services {
		info.Services = append(info.Services, h.info(sr))
	}
	return info
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	h.r.ServeHTTP(w, req)
	h.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("elapsed", time.Since(start)).
		Msg("request")
}

// NewHandler builds the HTTP API over a supervisor.  hist may be nil.
func NewHandler(s Supervisor, hist History, log zerolog.Logger) *Handler {
	r := mux.NewRouter()
	h := &Handler{s: s, hist: hist, r: r, log: log}
	r.HandleFunc("/services", h.listServices).Methods("GET")
	r.HandleFunc("/services/{service}", h.getService).Methods("GET")
	r.HandleFunc("/services/{service}/restart", h.restartService).Methods("POST")
	r.HandleFunc("/services/{service}/stop", h.stopService).Methods("POST")
	r.HandleFunc("/log", h.getLog).Methods("GET")
	r.HandleFunc("/runs", h.getRuns).Methods("GET")
	r.HandleFunc("/runs/latest", h.getLastRun).Methods("GET")
	return h
}
