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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func shellSpec(t *testing.T, name string, script string) ServiceSpec {
	t.Helper()
	dir := t.TempDir()
	return ServiceSpec{
		Name:        name,
		Command:     []string{"/bin/sh", "-c", script},
		Dir:         dir,
		LogPath:     filepath.Join(dir, name+".log"),
		GracePeriod: Duration(time.Second),
	}
}

func waitGone(p *Process, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !p.Alive() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestProcess(t *testing.T) {
	Convey("Given a long-running process", t, func() {
		p := NewProcess(shellSpec(t, "sleeper", "sleep 30"))

		Convey("Start launches it", func() {
			So(p.Start(), ShouldBeNil)
			So(p.Alive(), ShouldBeTrue)
			So(p.Pid(), ShouldBeGreaterThan, 0)

			Convey("Starting again while alive fails", func() {
				So(p.Start(), ShouldNotBeNil)
			})

			Convey("Stop terminates it within the grace period", func() {
				p.Stop(2 * time.Second)
				So(p.Alive(), ShouldBeFalse)
			})

			Reset(func() {
				p.Stop(time.Second)
			})
		})
	})

	Convey("Given a process that ignores SIGTERM", t, func() {
		p := NewProcess(shellSpec(t, "stubborn", `trap "" TERM; sleep 30`))
		So(p.Start(), ShouldBeNil)
		So(p.Alive(), ShouldBeTrue)

		Convey("Stop escalates to SIGKILL after the grace period", func() {
			start := time.Now()
			p.Stop(200 * time.Millisecond)
			So(p.Alive(), ShouldBeFalse)
			So(time.Since(start), ShouldBeLessThan, 10*time.Second)
		})
	})

	Convey("Given a process that writes output", t, func() {
		spec := shellSpec(t, "echoer", "echo deployed ok")
		p := NewProcess(spec)

		Convey("Output lands in the service log file", func() {
			So(p.Start(), ShouldBeNil)
			So(waitGone(p, 5*time.Second), ShouldBeTrue)

			data, err := os.ReadFile(spec.LogPath)
			So(err, ShouldBeNil)
			So(strings.TrimSpace(string(data)), ShouldEqual, "deployed ok")
		})
	})

	Convey("Given a command that cannot launch", t, func() {
		spec := shellSpec(t, "ghost", "true")
		spec.Command = []string{"/no/such/binary"}
		p := NewProcess(spec)

		Convey("Start reports a launch failure", func() {
			err := p.Start()
			So(err, ShouldNotBeNil)
			So(p.Alive(), ShouldBeFalse)
			So(p.Pid(), ShouldEqual, 0)
		})
	})
}

func TestTerminatePid(t *testing.T) {
	Convey("Given a recorded instance from an earlier run", t, func() {
		spec := shellSpec(t, "previous", "sleep 30")
		p := NewProcess(spec)
		So(p.Start(), ShouldBeNil)
		pid := p.Pid()

		Reset(func() {
			p.Stop(time.Second)
		})

		Convey("A matching signature terminates the pid", func() {
			err := TerminatePid(pid, spec.Signature(), 2*time.Second)
			So(err, ShouldBeNil)
			So(waitGone(p, 5*time.Second), ShouldBeTrue)
		})

		Convey("A mismatched signature leaves the pid alone", func() {
			err := TerminatePid(pid, "some\x00other\x00command", time.Second)
			So(err, ShouldBeNil)
			So(p.Alive(), ShouldBeTrue)
		})

		Convey("A dead pid is a no-op", func() {
			p.Stop(time.Second)
			err := TerminatePid(pid, spec.Signature(), time.Second)
			So(err, ShouldBeNil)
		})
	})
}
