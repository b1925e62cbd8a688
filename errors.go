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
	"errors"
)

var (
	ErrSyncFailed    = errors.New("Source sync failed")
	ErrInstallFailed = errors.New("Dependency install failed")
	ErrLaunchFailed  = errors.New("Service failed to launch")
	ErrNotReady      = errors.New("Service never became ready")
	ErrUnmetDepend   = errors.New("Dependency did not become ready")
	ErrNoService     = errors.New("No such service")
	ErrNotRunning    = errors.New("Service is not running")
	ErrRateLimited   = errors.New("Restarting too quickly")
	ErrStopTimeout   = errors.New("Process did not exit after SIGKILL")
)
