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

package aggregation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// windowStats accumulates mean and max for a single gauge-style metric.
type windowStats struct {
	sum   float64
	max   float64
	count int
}

func (w *windowStats) add(v float64) {
	if w.count == 0 || v > w.max {
		w.max = v
	}
	w.sum += v
	w.count++
}

func (w *windowStats) mean() float64 {
	if w.count == 0 {
		return 0
	}
	return w.sum / float64(w.count)
}

// Summarize reduces the raw samples of one window into a MetricSummary.
// Gauges (cpu, memory, response time) contribute mean and max, counters
// (requests, errors) are summed. Samples belonging to other services or
// carrying unknown metric names are ignored.
func Summarize(service string, samples []types.MetricSample) (*types.MetricSummary, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("service %s: %w", service, types.ErrInsufficientData)
	}

	var (
		cpu, memory, latency windowStats
		requests, errs       float64
		first, last          time.Time
		used                 int
	)
	for _, s := range samples {
		if s.Service != "" && s.Service != service {
			continue
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		switch s.MetricName {
		case types.MetricCPUUsage:
			cpu.add(s.Value)
		case types.MetricMemoryUsage:
			memory.add(s.Value)
		case types.MetricResponseTime:
			latency.add(s.Value)
		case types.MetricRequestCount:
			requests += s.Value
		case types.MetricErrorCount:
			errs += s.Value
		default:
			continue
		}
		used++
		if first.IsZero() || s.Timestamp.Before(first) {
			first = s.Timestamp
		}
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}
	if used == 0 {
		return nil, fmt.Errorf("service %s: no usable samples: %w", service, types.ErrInsufficientData)
	}

	summary := &types.MetricSummary{
		Service:         service,
		AvgCPU:          cpu.mean(),
		MaxCPU:          cpu.max,
		AvgMemory:       memory.mean(),
		MaxMemory:       memory.max,
		RequestCount:    requests,
		ErrorCount:      errs,
		AvgResponseTime: latency.mean(),
		Window:          last.Sub(first),
		WindowEnd:       last,
		SampleCount:     used,
	}
	if requests > 0 {
		summary.ErrorRate = errs / requests
	}
	return summary, nil
}

// Keys accepted by SummaryFromValues.
const (
	ValueAvgCPU       = types.FeatureAvgCPU
	ValueMaxCPU       = "max_cpu"
	ValueAvgMemory    = types.FeatureAvgMemory
	ValueMaxMemory    = "max_memory"
	ValueRequestCount = "request_count"
	ValueRequestRate  = types.FeatureRequestRate
	ValueErrorCount   = "error_count"
	ValueErrorRate    = types.FeatureErrorRate
	ValueResponseTime = types.FeatureResponseTime
	ValueHourOfDay    = types.FeatureHourOfDay
	ValueDayOfWeek    = types.FeatureDayOfWeek
)

var valueKeys = []string{
	ValueAvgCPU, ValueMaxCPU, ValueAvgMemory, ValueMaxMemory,
	ValueRequestCount, ValueRequestRate, ValueErrorCount, ValueErrorRate,
	ValueResponseTime, ValueHourOfDay, ValueDayOfWeek,
}

// valueAliases maps sample metric names onto summary keys.
var valueAliases = map[string]string{
	types.MetricCPUUsage:    ValueAvgCPU,
	types.MetricMemoryUsage: ValueAvgMemory,
	"avg_response_time":     ValueResponseTime,
}

// ValueKeys lists every key SummaryFromValues accepts, aliases included.
func ValueKeys() []string {
	keys := append([]string(nil), valueKeys...)
	for alias := range valueAliases {
		keys = append(keys, alias)
	}
	sort.Strings(keys)
	return keys
}

func canonicalKey(key string) (string, bool) {
	if name, ok := valueAliases[key]; ok {
		return name, true
	}
	for _, name := range valueKeys {
		if name == key {
			return name, true
		}
	}
	return "", false
}

// SummaryFromValues builds a summary from caller-provided aggregate values
// covering window. Keys are summary fields, feature names or sample metric
// names (see ValueKeys); missing keys stay zero and unknown keys are rejected.
// request_rate is per second and mutually exclusive with request_count.
// hour_of_day and day_of_week move WindowEnd back to the most recent matching
// time at or before now.
func SummaryFromValues(service string, values map[string]float64, window time.Duration, now time.Time) (*types.MetricSummary, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", types.ErrInvalidMetrics, window)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values provided", types.ErrInvalidMetrics)
	}

	canonical := make(map[string]float64, len(values))
	var unknown []string
	for key, v := range values {
		name, ok := canonicalKey(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: %s must be a finite non-negative number, got %v", types.ErrInvalidMetrics, key, v)
		}
		if _, dup := canonical[name]; dup {
			return nil, fmt.Errorf("%w: %s is given more than once through aliases", types.ErrInvalidMetrics, name)
		}
		canonical[name] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown keys %s", types.ErrInvalidMetrics, strings.Join(unknown, ", "))
	}

	rate, hasRate := canonical[ValueRequestRate]
	if _, hasCount := canonical[ValueRequestCount]; hasCount && hasRate {
		return nil, fmt.Errorf("%w: %s and %s are mutually exclusive", types.ErrInvalidMetrics, ValueRequestCount, ValueRequestRate)
	}

	end, err := featureTime(now, canonical)
	if err != nil {
		return nil, err
	}

	summary := &types.MetricSummary{
		Service:         service,
		AvgCPU:          canonical[ValueAvgCPU],
		MaxCPU:          canonical[ValueMaxCPU],
		AvgMemory:       canonical[ValueAvgMemory],
		MaxMemory:       canonical[ValueMaxMemory],
		RequestCount:    canonical[ValueRequestCount],
		ErrorCount:      canonical[ValueErrorCount],
		AvgResponseTime: canonical[ValueResponseTime],
		Window:          window,
		WindowEnd:       end,
		SampleCount:     len(values),
	}
	if hasRate {
		summary.RequestCount = rate * window.Seconds()
	}
	if summary.MaxCPU < summary.AvgCPU {
		summary.MaxCPU = summary.AvgCPU
	}
	if summary.MaxMemory < summary.AvgMemory {
		summary.MaxMemory = summary.AvgMemory
	}
	if errRate, ok := canonical[ValueErrorRate]; ok {
		summary.ErrorRate = errRate
	} else if summary.RequestCount > 0 {
		summary.ErrorRate = summary.ErrorCount / summary.RequestCount
	}
	return summary, nil
}

func featureTime(now time.Time, values map[string]float64) (time.Time, error) {
	end := now
	if h, ok := values[ValueHourOfDay]; ok {
		if h != math.Trunc(h) || h > 23 {
			return time.Time{}, fmt.Errorf("%w: %s must be a whole hour in [0, 23], got %v", types.ErrInvalidMetrics, ValueHourOfDay, h)
		}
		end = time.Date(end.Year(), end.Month(), end.Day(), int(h), end.Minute(), end.Second(), end.Nanosecond(), end.Location())
		if end.After(now) {
			end = end.AddDate(0, 0, -1)
		}
	}
	if d, ok := values[ValueDayOfWeek]; ok {
		if d != math.Trunc(d) || d > 6 {
			return time.Time{}, fmt.Errorf("%w: %s must be a whole day in [0, 6], got %v", types.ErrInvalidMetrics, ValueDayOfWeek, d)
		}
		for types.DayOfWeek(end) != int(d) {
			end = end.AddDate(0, 0, -1)
		}
	}
	return end, nil
}
