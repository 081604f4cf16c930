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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewFeatureVector(t *testing.T) {
	summary := &MetricSummary{
		AvgCPU:          55,
		AvgMemory:       40,
		RequestCount:    600,
		ErrorRate:       0.02,
		AvgResponseTime: 120,
		Window:          5 * time.Minute,
	}
	// Wednesday 14:30 UTC
	now := time.Date(2025, 1, 1, 14, 30, 0, 0, time.UTC)

	fv := NewFeatureVector(summary, now)

	assert.Len(t, fv, len(FeatureNames))
	assert.Equal(t, FeatureVector{55, 40, 2, 120, 0.02, 14, 2}, fv)

	rate, ok := fv.Get(FeatureRequestRate)
	assert.True(t, ok)
	assert.Equal(t, 2.0, rate)

	_, ok = fv.Get("unknown")
	assert.False(t, ok)
}

func TestFeatureVectorIsDeterministic(t *testing.T) {
	summary := &MetricSummary{AvgCPU: 10, AvgMemory: 20, RequestCount: 30}
	now := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC) // Sunday

	a := NewFeatureVector(summary, now)
	b := NewFeatureVector(summary, now)
	assert.Equal(t, a, b)

	dow, _ := a.Get(FeatureDayOfWeek)
	assert.Equal(t, 6.0, dow)
	// no window: raw count is the rate
	rate, _ := a.Get(FeatureRequestRate)
	assert.Equal(t, 30.0, rate)
}

func TestFeatureVectorUsesWindowEnd(t *testing.T) {
	// window ended Monday 09:00, decided Wednesday 14:30
	summary := &MetricSummary{AvgCPU: 10, WindowEnd: time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC)}
	fv := NewFeatureVector(summary, time.Date(2025, 1, 1, 14, 30, 0, 0, time.UTC))

	m := fv.AsMap()
	assert.Len(t, m, len(FeatureNames))
	assert.Equal(t, 10.0, m[FeatureAvgCPU])
	assert.Equal(t, 9.0, m[FeatureHourOfDay])
	assert.Equal(t, 0.0, m[FeatureDayOfWeek])
}

func TestScalingConstraintsClamp(t *testing.T) {
	c := ScalingConstraints{MinReplicas: 1, MaxReplicas: 10}
	assert.Equal(t, int32(10), c.Clamp(57))
	assert.Equal(t, int32(1), c.Clamp(0))
	assert.Equal(t, int32(1), c.Clamp(-3))
	assert.Equal(t, int32(4), c.Clamp(4))
}
