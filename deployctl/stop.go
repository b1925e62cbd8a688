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
	"errors"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the deployed services",
	Long: `stop retires every instance the registry has on record, in reverse
dependency order, without starting anything new.`,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	zl := newLogger()
	o, st, err := newOrchestrator(zl)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("stop needs the registry; drop --no-store")
	}
	ctx, cancel := signalContext()
	defer cancel()
	o.StopAll(ctx)
	return nil
}
