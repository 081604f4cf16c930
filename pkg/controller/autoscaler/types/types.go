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

// Package types holds the data model shared by the scaling decision engine:
// raw samples, per-window summaries, alert events, recommendations and the
// per-service scaling state.
package types

import (
	"fmt"
	"time"
)

// Metric names understood by the aggregator.
const (
	MetricCPUUsage     = "cpu_usage"
	MetricMemoryUsage  = "memory_usage"
	MetricRequestCount = "request_count"
	MetricErrorCount   = "error_count"
	MetricResponseTime = "response_time"
)

// MetricSample is a single telemetry point for a service. Samples are never
// modified after they are recorded.
type MetricSample struct {
	Service    string            `json:"service"`
	MetricName string            `json:"metric_name"`
	Value      float64           `json:"value"`
	Timestamp  time.Time         `json:"timestamp"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// MetricSummary is the per-service aggregation of one metrics window.
type MetricSummary struct {
	Service      string  `json:"service"`
	AvgCPU       float64 `json:"avg_cpu"`
	MaxCPU       float64 `json:"max_cpu"`
	AvgMemory    float64 `json:"avg_memory"`
	MaxMemory    float64 `json:"max_memory"`
	RequestCount float64 `json:"request_count"`
	ErrorCount   float64 `json:"error_count"`
	// ErrorRate is a fraction in [0,1], not a percentage.
	ErrorRate       float64       `json:"error_rate"`
	AvgResponseTime float64       `json:"avg_response_time"`
	Window          time.Duration `json:"window"`
	WindowEnd       time.Time     `json:"window_end"`
	SampleCount     int           `json:"sample_count"`
}

// RequestRate returns requests per second over the summary window. Without
// a window the raw request count is used.
func (s *MetricSummary) RequestRate() float64 {
	if s.Window <= 0 {
		return s.RequestCount
	}
	return s.RequestCount / s.Window.Seconds()
}

type AlertKind string

const (
	AlertCPUHigh       AlertKind = "cpu_high"
	AlertMemoryHigh    AlertKind = "memory_high"
	AlertErrorRateHigh AlertKind = "error_rate_high"
)

type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertEvent is produced by the alert evaluator and consumed once by a notifier.
type AlertEvent struct {
	ID              string    `json:"id"`
	Service         string    `json:"service"`
	Kind            AlertKind `json:"kind"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	TriggeringValue float64   `json:"triggering_value"`
	Timestamp       time.Time `json:"timestamp"`
}

type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionNone      ScalingAction = "none"
)

// ScalingRecommendation is the outcome of one decision cycle. Action and
// Executed are owned by the policy; the predictor only supplies the replica
// count and confidence.
type ScalingRecommendation struct {
	ID                  string        `json:"id"`
	Service             string        `json:"service_name"`
	CurrentReplicas     int32         `json:"current_replicas"`
	RecommendedReplicas int32         `json:"recommended_replicas"`
	Confidence          float64       `json:"confidence"`
	Action              ScalingAction `json:"action"`
	Reason              string        `json:"reason"`
	Executed            bool          `json:"executed"`
	CooldownActive      bool          `json:"cooldown_active"`
	ModelVersion        string        `json:"model_version,omitempty"`
	// Error carries the failure reason when part of the cycle failed.
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Failed reports whether the recommendation was meant to be dispatched but
// the orchestrator rejected or could not be reached.
func (r *ScalingRecommendation) Failed() bool {
	return r.Error != "" && r.Action != ActionNone && !r.Executed
}

func (r *ScalingRecommendation) String() string {
	return fmt.Sprintf("%s: %s %d->%d (confidence=%.2f, executed=%t, reason=%q)",
		r.Service, r.Action, r.CurrentReplicas, r.RecommendedReplicas, r.Confidence, r.Executed, r.Reason)
}

// ServiceScalingState is the mutable per-service record kept by the policy.
type ServiceScalingState struct {
	LastScalingTime time.Time     `json:"last_scaling_time"`
	LastAction      ScalingAction `json:"last_action"`
}

// ScalingConstraints defines scaling limits
type ScalingConstraints struct {
	MinReplicas int32
	MaxReplicas int32
}

// Clamp bounds replicas to [MinReplicas, MaxReplicas].
func (c ScalingConstraints) Clamp(replicas int32) int32 {
	if replicas < c.MinReplicas {
		return c.MinReplicas
	}
	if replicas > c.MaxReplicas {
		return c.MaxReplicas
	}
	return replicas
}
