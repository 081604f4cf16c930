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

package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Thresholds are strict lower bounds: a value equal to a threshold does not fire.
type Thresholds struct {
	CPUMedium   float64
	CPUCritical float64

	MemoryMedium float64
	MemoryHigh   float64

	// Error rate thresholds are fractions, not percentages.
	ErrorRateHigh     float64
	ErrorRateCritical float64
}

// DefaultThresholds returns the stock alerting table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUMedium:         80,
		CPUCritical:       90,
		MemoryMedium:      85,
		MemoryHigh:        95,
		ErrorRateHigh:     0.05,
		ErrorRateCritical: 0.10,
	}
}

// Evaluator maps a metrics summary onto threshold-crossing alert events. It is
// stateless; every call evaluates the summary independently.
type Evaluator struct {
	thresholds Thresholds
	now        func() time.Time
}

func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds, now: time.Now}
}

// Evaluate returns at most one event per metric kind, in cpu, memory, error rate order.
func (e *Evaluator) Evaluate(service string, summary *types.MetricSummary) []types.AlertEvent {
	if summary == nil {
		return nil
	}
	ts := e.now()
	var events []types.AlertEvent

	th := e.thresholds
	switch cpu := summary.AvgCPU; {
	case cpu > th.CPUCritical:
		events = append(events, e.newEvent(service, types.AlertCPUHigh, types.SeverityCritical,
			fmt.Sprintf("Critical CPU usage: %.1f%%", cpu), cpu, ts))
	case cpu > th.CPUMedium:
		events = append(events, e.newEvent(service, types.AlertCPUHigh, types.SeverityMedium,
			fmt.Sprintf("High CPU usage: %.1f%%", cpu), cpu, ts))
	}

	switch mem := summary.AvgMemory; {
	case mem > th.MemoryHigh:
		events = append(events, e.newEvent(service, types.AlertMemoryHigh, types.SeverityHigh,
			fmt.Sprintf("High memory usage: %.1f%%", mem), mem, ts))
	case mem > th.MemoryMedium:
		events = append(events, e.newEvent(service, types.AlertMemoryHigh, types.SeverityMedium,
			fmt.Sprintf("Elevated memory usage: %.1f%%", mem), mem, ts))
	}

	switch rate := summary.ErrorRate; {
	case rate > th.ErrorRateCritical:
		events = append(events, e.newEvent(service, types.AlertErrorRateHigh, types.SeverityCritical,
			fmt.Sprintf("Critical error rate: %.1f%%", rate*100), rate, ts))
	case rate > th.ErrorRateHigh:
		events = append(events, e.newEvent(service, types.AlertErrorRateHigh, types.SeverityHigh,
			fmt.Sprintf("High error rate: %.1f%%", rate*100), rate, ts))
	}

	return events
}

func (e *Evaluator) newEvent(service string, kind types.AlertKind, severity types.Severity, msg string, value float64, ts time.Time) types.AlertEvent {
	return types.AlertEvent{
		ID:              uuid.NewString(),
		Service:         service,
		Kind:            kind,
		Severity:        severity,
		Message:         msg,
		TriggeringValue: value,
		Timestamp:       ts,
	}
}
