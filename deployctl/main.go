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

// deployctl deploys and supervises the dukebot services.  Invoked
// bare it performs one deployment run and exits zero only on full
// success, which makes it suitable as the last step of a CI pipeline
// triggered over SSH.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dukebot/deployctl"
	"github.com/dukebot/deployctl/store"
)

var rootFlags struct {
	manifest string
	store    string
	noStore  bool
	verbose  bool
}

var rootCmd = &cobra.Command{
	Use:   "deployctl",
	Short: "Deploy and supervise the dukebot services",
	Long: `deployctl syncs the dukebot checkout to its remote branch, installs
dependencies, retires the previously running service instances, and
starts the services in dependency order, gating each dependent on its
dependency accepting TCP connections.  Exit status is zero only when
every service became ready.`,
	SilenceUsage: true,
	RunE:         runDeploy,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.manifest, "manifest", "f", "",
		"deployment manifest (YAML); built-in dukebot manifest when empty")
	pf.StringVar(&rootFlags.store, "store", defaultStorePath(),
		"registry database path")
	pf.BoolVar(&rootFlags.noStore, "no-store", false,
		"skip the persistent registry (previous instances are not retired)")
	pf.BoolVarP(&rootFlags.verbose, "verbose", "v", false,
		"debug logging")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "deployctl.db"
	}
	return filepath.Join(home, ".deployctl", "registry.db")
}

func newLogger() zerolog.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
	if !rootFlags.verbose {
		zl = zl.Level(zerolog.InfoLevel)
	}
	return zl
}

// logWriter feeds orchestrator log lines to the console logger.
type logWriter struct {
	zl zerolog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.zl.Info().Msg(line)
	}
	return len(p), nil
}

func openStore() (*store.Store, error) {
	if rootFlags.noStore {
		return nil, nil
	}
	return store.Open(rootFlags.store)
}

func newOrchestrator(zl zerolog.Logger) (*deploy.Orchestrator, *store.Store, error) {
	m, err := deploy.LoadManifest(rootFlags.manifest)
	if err != nil {
		return nil, nil, err
	}
	o, err := deploy.New(m)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	if st != nil {
		o.SetRegistry(st)
	}
	o.SetLogWriter(logWriter{zl})
	return o, st, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
}

func printRun(run *deploy.Run) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tPID\tDETAIL")
	for _, s := range run.Services {
		detail := s.Reason
		if s.Err != nil {
			detail = s.Err.Error()
		}
		pid := ""
		if s.PID != 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.State, pid, detail)
	}
	tw.Flush()
	fmt.Printf("outcome: %s\n", run.Outcome)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	zl := newLogger()
	o, _, err := newOrchestrator(zl)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	run := o.Run(ctx)
	printRun(run)
	if run.ExitCode() != 0 {
		if run.Err != nil {
			return fmt.Errorf("deployment aborted at %s: %v",
				run.Err.Step, run.Err.Err)
		}
		return fmt.Errorf("deployment finished: %s", run.Outcome)
	}
	return nil
}

func main() {
	rootCmd.AddCommand(serveCmd, statusCmd, servicesCmd, stopCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
