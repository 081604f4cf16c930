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
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	recommendedReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoserve_recommended_replicas",
			Help: "Replica count recommended by the last decision cycle",
		},
		[]string{"service"},
	)

	decisionConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autoserve_decision_confidence",
			Help: "Predictor confidence of the last decision cycle",
		},
		[]string{"service"},
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoserve_decisions_total",
			Help: "Scaling decisions by action and outcome",
		},
		[]string{"service", "action", "outcome"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoserve_alerts_total",
			Help: "Alert events by kind and severity",
		},
		[]string{"service", "kind", "severity"},
	)

	cycleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autoserve_cycle_errors_total",
			Help: "Decision cycles that ended in an error, by stage",
		},
		[]string{"service", "stage"},
	)

	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autoserve_cycle_duration_seconds",
			Help:    "Duration of a full per-service decision cycle",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)

func init() {
	// Register with controller-runtime metrics registry
	metrics.Registry.MustRegister(
		recommendedReplicas,
		decisionConfidence,
		decisionsTotal,
		alertsTotal,
		cycleErrorsTotal,
		cycleDuration,
	)
}
