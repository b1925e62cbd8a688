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
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukebot/deployctl"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the services the manifest declares",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := deploy.LoadManifest(rootFlags.manifest)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "SERVICE\tADDRESS\tDEPENDS\tLOG\tCOMMAND")
		for _, s := range m.Services {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				s.Name, s.Addr(), strings.Join(s.DependsOn, ","),
				s.LogPath, strings.Join(s.Command, " "))
		}
		return tw.Flush()
	},
}
