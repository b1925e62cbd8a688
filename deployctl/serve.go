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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukebot/deployctl/rest"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Deploy, then keep supervising with an HTTP status API",
	Long: `serve performs a deployment run and then stays resident: it watches
the launched processes, restarting services that opted in, and answers
status and operator requests over HTTP until interrupted.  Stopping
deployctl leaves the services running; the registry lets the next run
retire them.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.addr, "addr", "a",
		"127.0.0.1:8321", "listen address for the status API")
}

func runServe(cmd *cobra.Command, args []string) error {
	zl := newLogger()
	o, st, err := newOrchestrator(zl)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	run := o.Run(ctx)
	printRun(run)
	if run.Err != nil {
		return fmt.Errorf("deployment aborted at %s: %v",
			run.Err.Step, run.Err.Err)
	}

	var hist rest.History
	if st != nil {
		hist = st
	}
	srv := &http.Server{
		Addr:    serveFlags.addr,
		Handler: rest.NewHandler(o, hist, zl),
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal().Err(err).Msg("status API failed")
		}
	}()
	zl.Info().Str("addr", serveFlags.addr).Msg("status API listening")

	go o.Monitor(ctx)

	<-ctx.Done()
	zl.Info().Msg("shutting down; services are left running")
	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	return srv.Shutdown(shCtx)
}
