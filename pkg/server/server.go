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
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/metrics"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/predictor"
)

// ModelManager exposes the loaded model and reloads it on demand.
type ModelManager interface {
	Info() (predictor.ModelInfo, bool)
	Reload() (predictor.ModelInfo, error)
}

type httpServer struct {
	loop     *autoscaler.ScalingLoop
	models   ModelManager
	samples  *metrics.MemorySource
	validate *validator.Validate
}

// NewRouter wires the API routes. samples may be nil when metrics are pulled
// from Prometheus, in which case sample ingestion is disabled.
func NewRouter(loop *autoscaler.ScalingLoop, models ModelManager, samples *metrics.MemorySource) *mux.Router {
	server := &httpServer{
		loop:     loop,
		models:   models,
		samples:  samples,
		validate: validator.New(),
	}

	r := mux.NewRouter()
	// Scaling related handlers
	r.HandleFunc("/predict", server.predict).Methods("POST")
	r.HandleFunc("/scale", server.scale).Methods("POST")
	r.HandleFunc("/scaling-events", server.scalingEvents).Methods("GET")
	r.HandleFunc("/services/{service}/state", server.serviceState).Methods("GET")
	r.HandleFunc("/samples", server.ingestSamples).Methods("POST")

	// Model related handlers
	r.HandleFunc("/models", server.listModels).Methods("GET")
	r.HandleFunc("/models/retrain", server.retrain).Methods("POST")

	// Health and metrics handlers
	r.HandleFunc("/healthz", server.healthz).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{})).Methods("GET")

	return r
}

func NewHTTPServer(addr string, loop *autoscaler.ScalingLoop, models ModelManager, samples *metrics.MemorySource) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(loop, models, samples),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.ErrorS(err, "Failed to write response")
	}
}
