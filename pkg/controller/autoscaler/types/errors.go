/*
Copyright 2025 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package types

import (
	"context"
	"errors"
)

// Sentinel errors for known conditions
var (
	// ErrInsufficientData means there were no samples to summarize; the cycle is skipped.
	ErrInsufficientData = errors.New("insufficient metric data")

	// ErrInvalidMetrics means caller-provided metric values were rejected.
	ErrInvalidMetrics = errors.New("invalid metric values")

	// ErrMetricsUnavailable means the metric source could not be queried; retried next cycle.
	ErrMetricsUnavailable = errors.New("metrics unavailable")

	// ErrPredictionUnavailable means no model could produce a prediction.
	ErrPredictionUnavailable = errors.New("prediction unavailable")

	// ErrOrchestratorUnreachable means replica counts could not be read or written.
	ErrOrchestratorUnreachable = errors.New("orchestrator unreachable")

	// ErrNotifier means a notification could not be delivered.
	ErrNotifier = errors.New("notification delivery failed")
)

// IsSkippable returns true if the error only means this cycle has nothing to do
// for the service and should not be reported as a failure.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, context.Canceled)
}
