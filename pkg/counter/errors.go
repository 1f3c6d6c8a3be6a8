/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package counter

import "errors"

var (
	ErrNoRecordingWindows    = errors.New("at least one recording window is required")
	ErrInvalidMaximumPerSlot = errors.New("maximum per slot must not be negative")
	ErrOverrideNotReported   = errors.New("override window is not a reporting window")
	ErrInvalidTolerance      = errors.New("throttling tolerance must be within [0, 1]")
	ErrInvalidThrottling     = errors.New("invalid throttling configuration")
	ErrUnsupportedDirection  = errors.New("metric type is not recorded in this direction")
	ErrDuplicateSpan         = errors.New("reporting windows must have distinct spans")
)
