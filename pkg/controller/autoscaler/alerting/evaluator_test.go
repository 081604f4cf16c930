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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

type expected struct {
	kind     types.AlertKind
	severity types.Severity
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		summary types.MetricSummary
		want    []expected
	}{
		{
			name:    "quiet service",
			summary: types.MetricSummary{AvgCPU: 50, AvgMemory: 50, ErrorRate: 0.01},
		},
		{
			name:    "cpu exactly 80 does not fire",
			summary: types.MetricSummary{AvgCPU: 80},
		},
		{
			name:    "cpu just above 80 is medium",
			summary: types.MetricSummary{AvgCPU: 80.01},
			want:    []expected{{types.AlertCPUHigh, types.SeverityMedium}},
		},
		{
			name:    "cpu exactly 90 is medium",
			summary: types.MetricSummary{AvgCPU: 90},
			want:    []expected{{types.AlertCPUHigh, types.SeverityMedium}},
		},
		{
			name:    "cpu above 90 is critical",
			summary: types.MetricSummary{AvgCPU: 95},
			want:    []expected{{types.AlertCPUHigh, types.SeverityCritical}},
		},
		{
			name:    "memory exactly 85 does not fire",
			summary: types.MetricSummary{AvgMemory: 85},
		},
		{
			name:    "memory exactly 95 is medium",
			summary: types.MetricSummary{AvgMemory: 95},
			want:    []expected{{types.AlertMemoryHigh, types.SeverityMedium}},
		},
		{
			name:    "memory above 95 is high",
			summary: types.MetricSummary{AvgMemory: 97},
			want:    []expected{{types.AlertMemoryHigh, types.SeverityHigh}},
		},
		{
			name:    "error rate exactly 0.05 does not fire",
			summary: types.MetricSummary{ErrorRate: 0.05},
		},
		{
			name:    "error rate exactly 0.10 is high",
			summary: types.MetricSummary{ErrorRate: 0.10},
			want:    []expected{{types.AlertErrorRateHigh, types.SeverityHigh}},
		},
		{
			name:    "error rate above 0.10 is critical",
			summary: types.MetricSummary{ErrorRate: 0.25},
			want:    []expected{{types.AlertErrorRateHigh, types.SeverityCritical}},
		},
		{
			name:    "all three fire in order",
			summary: types.MetricSummary{AvgCPU: 91, AvgMemory: 90, ErrorRate: 0.07},
			want: []expected{
				{types.AlertCPUHigh, types.SeverityCritical},
				{types.AlertMemoryHigh, types.SeverityMedium},
				{types.AlertErrorRateHigh, types.SeverityHigh},
			},
		},
	}

	e := NewEvaluator(DefaultThresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := e.Evaluate("api", &tt.summary)
			require.Len(t, events, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w.kind, events[i].Kind)
				assert.Equal(t, w.severity, events[i].Severity)
				assert.Equal(t, "api", events[i].Service)
				assert.NotEmpty(t, events[i].ID)
				assert.NotEmpty(t, events[i].Message)
			}
		})
	}
}

func TestEvaluateIsStateless(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEvaluator(DefaultThresholds())
	e.now = func() time.Time { return fixed }

	summary := &types.MetricSummary{AvgCPU: 95}
	first := e.Evaluate("api", summary)
	second := e.Evaluate("api", summary)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Kind, second[0].Kind)
	assert.Equal(t, fixed, second[0].Timestamp)
	assert.Equal(t, 95.0, second[0].TriggeringValue)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	assert.Nil(t, e.Evaluate("api", nil))
}
