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

import "time"

const (
	FeatureAvgCPU       = "avg_cpu"
	FeatureAvgMemory    = "avg_memory"
	FeatureRequestRate  = "request_rate"
	FeatureResponseTime = "response_time"
	FeatureErrorRate    = "error_rate"
	FeatureHourOfDay    = "hour_of_day"
	FeatureDayOfWeek    = "day_of_week"
)

// FeatureNames is the ordering contract shared with predictors. Append only.
var FeatureNames = []string{
	FeatureAvgCPU,
	FeatureAvgMemory,
	FeatureRequestRate,
	FeatureResponseTime,
	FeatureErrorRate,
	FeatureHourOfDay,
	FeatureDayOfWeek,
}

var featureIndex = func() map[string]int {
	idx := make(map[string]int, len(FeatureNames))
	for i, name := range FeatureNames {
		idx[name] = i
	}
	return idx
}()

// FeatureVector is the fixed-order numeric encoding of a summary, see FeatureNames.
type FeatureVector []float64

// DayOfWeek counts from Monday=0.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// NewFeatureVector encodes a summary plus the hour-of-day and day-of-week at
// the end of its window, or of now when WindowEnd is unset.
func NewFeatureVector(summary *MetricSummary, now time.Time) FeatureVector {
	at := now
	if !summary.WindowEnd.IsZero() {
		at = summary.WindowEnd
	}
	return FeatureVector{
		summary.AvgCPU,
		summary.AvgMemory,
		summary.RequestRate(),
		summary.AvgResponseTime,
		summary.ErrorRate,
		float64(at.Hour()),
		float64(DayOfWeek(at)),
	}
}

// Get returns the named feature, or false if the name is unknown or the
// vector is shorter than the contract.
func (f FeatureVector) Get(name string) (float64, bool) {
	i, ok := featureIndex[name]
	if !ok || i >= len(f) {
		return 0, false
	}
	return f[i], true
}

// AsMap keys the vector by feature name.
func (f FeatureVector) AsMap() map[string]float64 {
	out := make(map[string]float64, len(f))
	for i, v := range f {
		if i < len(FeatureNames) {
			out[FeatureNames[i]] = v
		}
	}
	return out
}
