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

package predictor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Prediction is the raw model output. Replicas are not yet clamped.
type Prediction struct {
	Replicas     int32
	Confidence   float64
	ModelVersion string
}

// Predictor maps a feature vector onto a desired replica count and a
// confidence in [0,1]. Failures wrap types.ErrPredictionUnavailable.
type Predictor interface {
	Predict(ctx context.Context, features types.FeatureVector) (*Prediction, error)
}

// Model is a loaded, immutable prediction backend.
type Model interface {
	Predict(features types.FeatureVector) (Prediction, error)
	Info() ModelInfo
}

// ModelInfo describes the currently loaded model.
type ModelInfo struct {
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Kind     string    `json:"kind"`
	Features []string  `json:"features"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ModelLoader produces a fresh model, typically by reading it from disk.
type ModelLoader func() (Model, error)

// ModelPredictor serves predictions from a model handle that can be swapped
// atomically while predictions are in flight.
type ModelPredictor struct {
	model  atomic.Pointer[Model]
	loader ModelLoader
}

var _ Predictor = &ModelPredictor{}

// NewModelPredictor creates a predictor serving the given model. loader may be
// nil, in which case Reload fails.
func NewModelPredictor(model Model, loader ModelLoader) *ModelPredictor {
	p := &ModelPredictor{loader: loader}
	if model != nil {
		p.model.Store(&model)
	}
	return p
}

func (p *ModelPredictor) Predict(ctx context.Context, features types.FeatureVector) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPredictionUnavailable, err)
	}
	m := p.model.Load()
	if m == nil {
		return nil, fmt.Errorf("%w: no model loaded", types.ErrPredictionUnavailable)
	}
	pred, err := (*m).Predict(features)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPredictionUnavailable, err)
	}
	return &pred, nil
}

// Reload replaces the served model with a freshly loaded one. The previous
// model keeps serving if loading fails.
func (p *ModelPredictor) Reload() (ModelInfo, error) {
	if p.loader == nil {
		return ModelInfo{}, fmt.Errorf("no model loader configured")
	}
	m, err := p.loader()
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to load model: %w", err)
	}
	p.Swap(m)
	return m.Info(), nil
}

// Swap installs a new model.
func (p *ModelPredictor) Swap(m Model) {
	p.model.Store(&m)
	info := m.Info()
	klog.InfoS("Model swapped", "name", info.Name, "version", info.Version, "kind", info.Kind)
}

// Info returns the loaded model, or false if none is loaded.
func (p *ModelPredictor) Info() (ModelInfo, bool) {
	m := p.model.Load()
	if m == nil {
		return ModelInfo{}, false
	}
	return (*m).Info(), true
}
