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

// Package deploy implements a process-supervising deployment
// orchestrator.  Given a manifest describing a checkout directory and a
// set of named services (start command, bind address, log destination,
// optional dependencies), a single Run synchronizes the source tree,
// installs dependencies, gracefully retires any previously running
// instances, starts fresh instances with their output redirected to
// per-service log files, and gates dependent services on the readiness
// of their dependencies.
//
// The orchestrator is intended to be driven by an external trigger,
// typically a CI job invoking the deployctl binary over SSH on a push
// to the deploy branch.  It is stateless across invocations except for
// a small SQLite registry that records run outcomes and the PID and
// launch signature of each service, so that the next run can retire the
// previous instances without resorting to process-name matching.
//
// A Run never panics and never exits the process on failure: every
// failure mode (sync, install, launch, readiness) is recorded in the
// Run result and mapped to an exit code by the caller.
package deploy
