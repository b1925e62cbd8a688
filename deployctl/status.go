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

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukebot/deployctl"
	"github.com/dukebot/deployctl/rest"
)

var statusFlags struct {
	addr string
	runs int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service states from a running serve instance",
	Long: `status queries the HTTP API of a resident deployctl serve.  When no
serve instance answers, it falls back to the registry database and
shows recent run history instead.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlags.addr, "addr", "a",
		"127.0.0.1:8321", "address of the serve status API")
	statusCmd.Flags().IntVar(&statusFlags.runs, "runs", 5,
		"number of past runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := rest.NewClient("http://"+statusFlags.addr, nil)
	svcs, err := c.Services(ctx)
	if err == nil {
		tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "SERVICE\tSTATE\tPID\tADDRESS\tDETAIL")
		for _, s := range svcs {
			pid := ""
			if s.PID != 0 {
				pid = fmt.Sprintf("%d", s.PID)
			}
			detail := s.Reason
			if s.Error != "" {
				detail = s.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				s.Name, s.State, pid, s.Address, detail)
		}
		tw.Flush()

		if runs, err := c.Runs(ctx, statusFlags.runs); err == nil {
			printRunSummaries(runs)
		}
		return nil
	}

	// no serve instance; fall back to the registry
	st, serr := openStore()
	if serr != nil || st == nil {
		return fmt.Errorf("cannot reach serve at %s: %w", statusFlags.addr, err)
	}
	fmt.Printf("no serve instance at %s; registry history:\n", statusFlags.addr)
	runs, rerr := st.RecentRuns(ctx, statusFlags.runs)
	if rerr != nil {
		return rerr
	}
	printRunSummaries(runs)
	return nil
}

func printRunSummaries(runs []deploy.RunSummary) {
	if len(runs) == 0 {
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tOUTCOME\tSTARTED\tDETAIL")
	for _, r := range runs {
		detail := r.Error
		if r.Step != "" {
			detail = fmt.Sprintf("%s: %s", r.Step, r.Error)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Outcome,
			r.StartedAt.Format(time.RFC3339), detail)
	}
	tw.Flush()
}
