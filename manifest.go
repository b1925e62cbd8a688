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
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultGracePeriod  = 5 * time.Second
	DefaultReadyTimeout = 30 * time.Second
	DefaultRemote       = "origin"
	DefaultBranch       = "main"
)

// Duration wraps time.Duration so manifests can say "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// SourceSpec names the git remote and branch a run deploys from.
type SourceSpec struct {
	Remote string `yaml:"remote,omitempty"`
	Branch string `yaml:"branch,omitempty"`
}

// ServiceSpec is the declarative description of one process to
// supervise.  Specs are immutable once a run begins.
type ServiceSpec struct {
	Name         string            `yaml:"name"`
	Command      []string          `yaml:"command"`
	Dir          string            `yaml:"dir,omitempty"`          // defaults to the manifest workDir
	BindHost     string            `yaml:"bindHost,omitempty"`     // defaults to 127.0.0.1
	BindPort     int               `yaml:"bindPort"`
	LogPath      string            `yaml:"logPath,omitempty"`      // defaults to <logDir>/<name>.log
	DependsOn    []string          `yaml:"dependsOn,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
	GracePeriod  Duration          `yaml:"gracePeriod,omitempty"`  // wait after SIGTERM before SIGKILL
	ReadyTimeout Duration          `yaml:"readyTimeout,omitempty"` // bound on the readiness poll
	Restart      bool              `yaml:"restart,omitempty"`      // self-heal in serve mode
}

// Signature is the launch signature used to recognize a previously
// started instance of this service.  It matches the NUL-separated argv
// exposed by /proc/<pid>/cmdline.
func (s ServiceSpec) Signature() string {
	return strings.Join(s.Command, "\x00")
}

// Addr is the bind address as host:port.
func (s ServiceSpec) Addr() string {
	return net.JoinHostPort(s.BindHost, strconv.Itoa(s.BindPort))
}

// DialAddr is the address the readiness probe connects to.  Wildcard
// binds are probed over loopback.
func (s ServiceSpec) DialAddr() string {
	host := s.BindHost
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.BindPort))
}

// Manifest is the configuration input for a deployment run.
type Manifest struct {
	WorkDir  string        `yaml:"workDir"`
	LogDir   string        `yaml:"logDir,omitempty"` // defaults to <workDir>/logs
	Source   SourceSpec    `yaml:"source,omitempty"`
	Install  []string      `yaml:"install,omitempty"` // dependency install command, run in workDir
	Services []ServiceSpec `yaml:"services"`
}

// DefaultManifest mirrors the original dukebot deployment: a Flask API
// on loopback and a Streamlit dashboard that depends on it.
func DefaultManifest() Manifest {
	return Manifest{
		WorkDir: "/home/ubuntu/dukebot",
		Source:  SourceSpec{Remote: DefaultRemote, Branch: DefaultBranch},
		Install: []string{"pip3", "install", "-r", "requirements.txt"},
		Services: []ServiceSpec{
			{
				Name:     "api",
				Command:  []string{"python3", "backend_app.py"},
				BindHost: "127.0.0.1",
				BindPort: 5000,
			},
			{
				Name: "dashboard",
				Command: []string{"streamlit", "run", "streamlit_app.py",
					"--server.port", "8501"},
				BindHost:  "0.0.0.0",
				BindPort:  8501,
				DependsOn: []string{"api"},
			},
		},
	}
}

// LoadManifest reads a manifest file, applies defaults, and validates
// it.  An empty path yields the default manifest.
func LoadManifest(path string) (Manifest, error) {
	m := DefaultManifest()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Manifest{}, fmt.Errorf("reading manifest %s: %w", path, err)
		}
		m = Manifest{}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
		}
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m *Manifest) applyDefaults() {
	if m.LogDir == "" && m.WorkDir != "" {
		m.LogDir = filepath.Join(m.WorkDir, "logs")
	}
	if m.Source.Remote == "" {
		m.Source.Remote = DefaultRemote
	}
	if m.Source.Branch == "" {
		m.Source.Branch = DefaultBranch
	}
	for i := range m.Services {
		s := &m.Services[i]
		if s.Dir == "" {
			s.Dir = m.WorkDir
		}
		if s.BindHost == "" {
			s.BindHost = "127.0.0.1"
		}
		if s.LogPath == "" {
			s.LogPath = s.Name + ".log"
		}
		if !filepath.IsAbs(s.LogPath) {
			s.LogPath = filepath.Join(m.LogDir, s.LogPath)
		}
		if s.GracePeriod == 0 {
			s.GracePeriod = Duration(DefaultGracePeriod)
		}
		if s.ReadyTimeout == 0 {
			s.ReadyTimeout = Duration(DefaultReadyTimeout)
		}
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// Validate checks structural constraints: a work directory, unique
// well-formed service names, runnable commands, usable ports, and a
// resolvable acyclic dependency graph.
func (m Manifest) Validate() error {
	if m.WorkDir == "" {
		return fmt.Errorf("manifest: workDir is required")
	}
	if len(m.Services) == 0 {
		return fmt.Errorf("manifest: at least one service is required")
	}
	byName := make(map[string]ServiceSpec, len(m.Services))
	for _, s := range m.Services {
		if !validName(s.Name) {
			return fmt.Errorf("manifest: invalid service name %q", s.Name)
		}
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("manifest: duplicate service name %q", s.Name)
		}
		if len(s.Command) == 0 {
			return fmt.Errorf("manifest: service %q has no command", s.Name)
		}
		if s.BindPort <= 0 || s.BindPort > 65535 {
			return fmt.Errorf("manifest: service %q has invalid port %d",
				s.Name, s.BindPort)
		}
		byName[s.Name] = s
	}
	for _, s := range m.Services {
		for _, d := range s.DependsOn {
			if d == s.Name {
				return fmt.Errorf("manifest: service %q depends on itself", s.Name)
			}
			if _, ok := byName[d]; !ok {
				return fmt.Errorf("manifest: service %q depends on unknown service %q",
					s.Name, d)
			}
		}
	}
	if _, err := topoOrder(m.Services); err != nil {
		return err
	}
	return nil
}

// ServiceNames returns the declared service names in manifest order.
func (m Manifest) ServiceNames() []string {
	return lo.Map(m.Services, func(s ServiceSpec, _ int) string { return s.Name })
}

// topoOrder sorts specs so every dependency precedes its dependents.
// Returns an error if the graph has a cycle.
func topoOrder(specs []ServiceSpec) ([]ServiceSpec, error) {
	const (
		white = iota // unvisited
		grey         // on the current path
		black        // done
	)
	byName := lo.SliceToMap(specs, func(s ServiceSpec) (string, ServiceSpec) {
		return s.Name, s
	})
	color := make(map[string]int, len(specs))
	ordered := make([]ServiceSpec, 0, len(specs))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("manifest: dependency cycle through service %q", name)
		}
		color[name] = grey
		for _, d := range byName[name].DependsOn {
			if err := visit(d); err != nil {
				return err
			}
		}
		color[name] = black
		ordered = append(ordered, byName[name])
		return nil
	}
	for _, s := range specs {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
