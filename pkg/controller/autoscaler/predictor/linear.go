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
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

const linearKind = "linear"

// LinearModel predicts replicas as intercept + sum(weight * feature).
//
// Confidence combines how close the raw output lands to a whole replica count
// with the fraction of weighted features that were present and finite.
type LinearModel struct {
	Name      string             `json:"name"`
	Version   string             `json:"version"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`

	loadedAt time.Time
}

var _ Model = &LinearModel{}

// DefaultLinearModel is a load-factor model over cpu, memory and request rate.
func DefaultLinearModel() *LinearModel {
	return &LinearModel{
		Name:      "load-factor",
		Version:   "v1",
		Intercept: 1,
		Weights: map[string]float64{
			types.FeatureAvgCPU:      0.027,
			types.FeatureAvgMemory:   0.027,
			types.FeatureRequestRate: 0.00036,
		},
		loadedAt: time.Now(),
	}
}

// LoadLinearModel reads a YAML or JSON model description from path.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	m := &LinearModel{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid model file %s: %w", path, err)
	}
	m.loadedAt = time.Now()
	return m, nil
}

// FileLoader returns a ModelLoader that re-reads path on every call.
func FileLoader(path string) ModelLoader {
	return func() (Model, error) {
		return LoadLinearModel(path)
	}
}

func (m *LinearModel) validate() error {
	if len(m.Weights) == 0 {
		return fmt.Errorf("model has no weights")
	}
	known := make(map[string]bool, len(types.FeatureNames))
	for _, name := range types.FeatureNames {
		known[name] = true
	}
	for name, w := range m.Weights {
		if !known[name] {
			return fmt.Errorf("unknown feature %q", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %q is not finite", name)
		}
	}
	if m.Name == "" {
		m.Name = "linear"
	}
	return nil
}

func (m *LinearModel) Predict(features types.FeatureVector) (Prediction, error) {
	raw := m.Intercept
	present := 0
	for name, w := range m.Weights {
		v, ok := features.Get(name)
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		raw += w * v
		present++
	}
	if present == 0 {
		return Prediction{}, fmt.Errorf("none of the %d model features are present", len(m.Weights))
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Prediction{}, fmt.Errorf("model output is not finite")
	}

	rounded := math.Round(raw)
	margin := 1 - math.Abs(raw-rounded)
	completeness := float64(present) / float64(len(m.Weights))
	confidence := math.Max(0, math.Min(1, margin*completeness))

	replicas := rounded
	if replicas > math.MaxInt32 {
		replicas = math.MaxInt32
	}
	if replicas < 0 {
		replicas = 0
	}
	return Prediction{
		Replicas:     int32(replicas),
		Confidence:   confidence,
		ModelVersion: m.Version,
	}, nil
}

func (m *LinearModel) Info() ModelInfo {
	features := make([]string, 0, len(m.Weights))
	for name := range m.Weights {
		features = append(features, name)
	}
	sort.Strings(features)
	return ModelInfo{
		Name:     m.Name,
		Version:  m.Version,
		Kind:     linearKind,
		Features: features,
		LoadedAt: m.loadedAt,
	}
}
