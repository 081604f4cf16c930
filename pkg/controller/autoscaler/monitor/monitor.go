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

package monitor

import (
	"time"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Decision outcomes.
const (
	OutcomeExecuted = "executed"
	OutcomeSkipped  = "skipped"
	OutcomeCooldown = "cooldown"
	OutcomeFailed   = "failed"
)

// Monitor records decision engine metrics on the controller-runtime registry.
type Monitor struct{}

func New() *Monitor {
	return &Monitor{}
}

func (m *Monitor) RecordRecommendation(rec *types.ScalingRecommendation) {
	recommendedReplicas.WithLabelValues(rec.Service).Set(float64(rec.RecommendedReplicas))
	decisionConfidence.WithLabelValues(rec.Service).Set(rec.Confidence)
	decisionsTotal.WithLabelValues(rec.Service, string(rec.Action), outcome(rec)).Inc()
}

func (m *Monitor) RecordAlert(alert types.AlertEvent) {
	alertsTotal.WithLabelValues(alert.Service, string(alert.Kind), string(alert.Severity)).Inc()
}

func (m *Monitor) RecordCycleError(service, stage string) {
	cycleErrorsTotal.WithLabelValues(service, stage).Inc()
}

func (m *Monitor) ObserveCycle(service string, d time.Duration) {
	cycleDuration.WithLabelValues(service).Observe(d.Seconds())
}

func outcome(rec *types.ScalingRecommendation) string {
	switch {
	case rec.Executed:
		return OutcomeExecuted
	case rec.Failed():
		return OutcomeFailed
	case rec.CooldownActive:
		return OutcomeCooldown
	default:
		return OutcomeSkipped
	}
}
