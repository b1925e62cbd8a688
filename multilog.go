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
	"io"
	"sync"
)

// MultiWriter fans a line-oriented log stream out to several sinks:
// the in-memory ring, a console writer, a run log file.  Sinks can be
// added and removed while the orchestrator is running.
type MultiWriter struct {
	sinks []io.Writer
	mu    sync.Mutex
}

func NewMultiWriter(sinks ...io.Writer) *MultiWriter {
	return &MultiWriter{sinks: sinks}
}

// Write delivers b to every registered sink.  Sink errors are
// swallowed; one broken sink must not silence the others.
func (m *MultiWriter) Write(b []byte) (int, error) {
	m.mu.Lock()
	for _, w := range m.sinks {
		w.Write(b)
	}
	m.mu.Unlock()
	return len(b), nil
}

// Add registers a sink.  Adding the same sink twice is a no-op.
func (m *MultiWriter) Add(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.sinks {
		if x == w {
			return
		}
	}
	m.sinks = append(m.sinks, w)
}

// Del removes a previously added sink.
func (m *MultiWriter) Del(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.sinks {
		if x == w {
			m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
			return
		}
	}
}
