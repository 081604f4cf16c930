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

package metrics

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Query maps one sample metric name onto a PromQL template. Templates may
// use ${service}, ${namespace} and ${window}. Range queries return one sample
// per step; instant queries return one sample per series.
type Query struct {
	Metric  string `json:"metric"`
	PromQL  string `json:"promql"`
	Instant bool   `json:"instant,omitempty"`
}

// DefaultQueries reads cAdvisor and HTTP server metrics for the pods of a service.
func DefaultQueries() []Query {
	return []Query{
		{
			Metric: types.MetricCPUUsage,
			PromQL: `100 * sum(rate(container_cpu_usage_seconds_total{namespace="${namespace}",pod=~"${service}-.*"}[1m])) / sum(kube_pod_container_resource_limits{namespace="${namespace}",pod=~"${service}-.*",resource="cpu"})`,
		},
		{
			Metric: types.MetricMemoryUsage,
			PromQL: `100 * sum(container_memory_working_set_bytes{namespace="${namespace}",pod=~"${service}-.*"}) / sum(kube_pod_container_resource_limits{namespace="${namespace}",pod=~"${service}-.*",resource="memory"})`,
		},
		{
			Metric: types.MetricResponseTime,
			PromQL: `1000 * sum(rate(http_request_duration_seconds_sum{namespace="${namespace}",service="${service}"}[1m])) / sum(rate(http_request_duration_seconds_count{namespace="${namespace}",service="${service}"}[1m]))`,
		},
		{
			Metric:  types.MetricRequestCount,
			PromQL:  `sum(increase(http_requests_total{namespace="${namespace}",service="${service}"}[${window}]))`,
			Instant: true,
		},
		{
			Metric:  types.MetricErrorCount,
			PromQL:  `sum(increase(http_requests_total{namespace="${namespace}",service="${service}",code=~"5.."}[${window}]))`,
			Instant: true,
		},
	}
}

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// BuildQuery injects label values into a PromQL template. Unknown
// placeholders are left untouched.
func BuildQuery(queryTemplate string, queryLabels map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(queryTemplate, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, exists := queryLabels[key]; exists {
			return value
		}
		return match
	})
}

// InitializePrometheusAPI initializes the Prometheus API client.
func InitializePrometheusAPI(endpoint, username, password string) (prometheusv1.API, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("prometheus endpoint is not provided")
	}

	rt := api.DefaultRoundTripper
	if username != "" {
		rt = config.NewBasicAuthRoundTripper(config.NewInlineSecret(username),
			config.NewInlineSecret(password), api.DefaultRoundTripper)
	}
	client, err := api.NewClient(api.Config{
		Address:      endpoint,
		RoundTripper: rt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return prometheusv1.NewAPI(client), nil
}

// PrometheusSource pulls samples by running one PromQL query per metric.
type PrometheusSource struct {
	api       prometheusv1.API
	namespace string
	queries   []Query
	step      time.Duration
	now       func() time.Time
}

var _ Source = &PrometheusSource{}

func NewPrometheusSource(promAPI prometheusv1.API, namespace string, queries []Query, step time.Duration) *PrometheusSource {
	if len(queries) == 0 {
		queries = DefaultQueries()
	}
	if step <= 0 {
		step = 30 * time.Second
	}
	return &PrometheusSource{
		api:       promAPI,
		namespace: namespace,
		queries:   queries,
		step:      step,
		now:       time.Now,
	}
}

// Fetch runs every configured query. A single failing query fails the whole
// fetch so the aggregator never sees a partial window.
func (p *PrometheusSource) Fetch(ctx context.Context, service string, window time.Duration) ([]types.MetricSample, error) {
	end := p.now()
	labels := map[string]string{
		"service":   service,
		"namespace": p.namespace,
		"window":    model.Duration(window).String(),
	}

	var samples []types.MetricSample
	for _, q := range p.queries {
		query := BuildQuery(q.PromQL, labels)
		var (
			result   model.Value
			warnings prometheusv1.Warnings
			err      error
		)
		if q.Instant {
			result, warnings, err = p.api.Query(ctx, query, end)
		} else {
			result, warnings, err = p.api.QueryRange(ctx, query, prometheusv1.Range{
				Start: end.Add(-window),
				End:   end,
				Step:  p.step,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("%w: query %s for service %s: %v", types.ErrMetricsUnavailable, q.Metric, service, err)
		}
		if len(warnings) > 0 {
			klog.V(4).InfoS("Prometheus query returned warnings", "service", service, "metric", q.Metric, "warnings", strings.Join(warnings, "; "))
		}
		samples = append(samples, toSamples(service, q.Metric, result)...)
	}
	return samples, nil
}

func toSamples(service, metric string, value model.Value) []types.MetricSample {
	if value == nil {
		return nil
	}
	var out []types.MetricSample
	switch v := value.(type) {
	case model.Vector:
		for _, s := range v {
			out = append(out, newSample(service, metric, s.Metric, s.Value, s.Timestamp))
		}
	case model.Matrix:
		for _, stream := range v {
			for _, pair := range stream.Values {
				out = append(out, newSample(service, metric, stream.Metric, pair.Value, pair.Timestamp))
			}
		}
	case *model.Scalar:
		out = append(out, newSample(service, metric, nil, v.Value, v.Timestamp))
	default:
		klog.V(4).InfoS("Ignoring unsupported prometheus result", "service", service, "metric", metric, "type", value.Type())
	}
	return out
}

func newSample(service, metric string, labels model.Metric, value model.SampleValue, ts model.Time) types.MetricSample {
	var l map[string]string
	if len(labels) > 0 {
		l = make(map[string]string, len(labels))
		for k, v := range labels {
			l[string(k)] = string(v)
		}
	}
	return types.MetricSample{
		Service:    service,
		MetricName: metric,
		Value:      float64(value),
		Timestamp:  ts.Time(),
		Labels:     l,
	}
}
