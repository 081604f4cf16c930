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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/aggregation"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

const defaultEventLimit = 50

type PredictRequest struct {
	Service string `json:"service_name" validate:"required"`
	// Metrics are pre-aggregated values keyed by aggregation.ValueKeys.
	// The metrics source is queried when omitted.
	Metrics map[string]float64 `json:"metrics,omitempty" validate:"omitempty,dive,keys,oneof=avg_cpu cpu_usage max_cpu avg_memory memory_usage max_memory request_count request_rate error_count error_rate response_time avg_response_time hour_of_day day_of_week,endkeys,gte=0"`
	// WindowSeconds is the span the provided metrics cover. Defaults to the
	// loop's metrics window.
	WindowSeconds int `json:"window_seconds,omitempty" validate:"gte=0"`
}

type ScaleRequest struct {
	Service  string `json:"service_name" validate:"required"`
	Replicas int32  `json:"replicas" validate:"gte=0"`
}

type SamplesRequest struct {
	Samples []types.MetricSample `json:"samples" validate:"min=1,dive"`
}

func (s *httpServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *httpServer) predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !s.decode(w, r, &req) {
		return
	}

	var summary *types.MetricSummary
	if len(req.Metrics) > 0 {
		window := s.loop.Window()
		if req.WindowSeconds > 0 {
			window = time.Duration(req.WindowSeconds) * time.Second
		}
		var err error
		summary, err = aggregation.SummaryFromValues(req.Service, req.Metrics, window, time.Now())
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
			return
		}
	}

	rec, err := s.loop.DecideNow(r.Context(), req.Service, summary)
	if err != nil {
		klog.ErrorS(err, "Prediction request failed", "service", req.Service)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, types.ErrInsufficientData):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, types.ErrMetricsUnavailable):
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *httpServer) scale(w http.ResponseWriter, r *http.Request) {
	var req ScaleRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.loop.ManualScale(r.Context(), req.Service, req.Replicas)
	if err != nil {
		if rec == nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusBadGateway, rec)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *httpServer) scalingEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.loop.History.List(r.Context(), r.URL.Query().Get("service"), limit)
	if err != nil {
		klog.ErrorS(err, "Failed to list scaling events")
		http.Error(w, "failed to list scaling events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *httpServer) serviceState(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	state, ok := s.loop.Policy.State(service)
	if !ok {
		http.Error(w, fmt.Sprintf("no scaling state for service %s", service), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": service, "state": state})
}

func (s *httpServer) ingestSamples(w http.ResponseWriter, r *http.Request) {
	if s.samples == nil {
		http.Error(w, "sample ingestion is disabled when metrics are pulled from prometheus", http.StatusNotImplemented)
		return
	}
	var req SamplesRequest
	if !s.decode(w, r, &req) {
		return
	}
	stored := s.samples.Record(req.Samples...)
	writeJSON(w, http.StatusAccepted, map[string]int{"stored": stored})
}

func (s *httpServer) listModels(w http.ResponseWriter, r *http.Request) {
	info, ok := s.models.Info()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"models": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": []any{info}})
}

func (s *httpServer) retrain(w http.ResponseWriter, r *http.Request) {
	info, err := s.models.Reload()
	if err != nil {
		klog.ErrorS(err, "Model reload failed")
		http.Error(w, fmt.Sprintf("model reload failed: %v", err), http.StatusInternalServerError)
		return
	}
	klog.InfoS("Model reloaded on request", "name", info.Name, "version", info.Version)
	writeJSON(w, http.StatusOK, info)
}

func (s *httpServer) healthz(w http.ResponseWriter, r *http.Request) {
	info, loaded := s.models.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": loaded,
		"model":        info.Name,
		"orchestrator": s.loop.Orchestrator.Kind(),
		"services":     s.loop.Services(),
	})
}
