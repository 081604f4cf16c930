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

package policy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/orchestrator"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/predictor"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

const (
	ReasonNoPrediction = "no prediction available"
	ReasonCooldown     = "cooldown active"
	ReasonAtTarget     = "replicas already at target"
)

// Config holds the decision parameters.
type Config struct {
	// ConfidenceThreshold is the minimum predictor confidence required to execute.
	ConfidenceThreshold float64
	// Cooldown is the minimum time between two executed actions of a service.
	Cooldown    time.Duration
	Constraints types.ScalingConstraints
	// CallTimeout bounds each predictor and orchestrator call.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.7,
		Cooldown:            300 * time.Second,
		Constraints:         types.ScalingConstraints{MinReplicas: 1, MaxReplicas: 10},
		CallTimeout:         5 * time.Second,
	}
}

// serviceEntry serializes decision cycles of one service through slot and
// guards the scaling state with mu. mu is never held across external calls.
type serviceEntry struct {
	slot  chan struct{}
	mu    sync.Mutex
	state types.ServiceScalingState
}

// Policy turns a metrics summary into a gated scaling recommendation and
// dispatches it. It owns the per-service scaling state; entries are created
// lazily and never evicted.
type Policy struct {
	config       Config
	predictor    predictor.Predictor
	orchestrator orchestrator.Orchestrator

	mu      sync.Mutex
	entries map[string]*serviceEntry
}

func New(config Config, p predictor.Predictor, o orchestrator.Orchestrator) *Policy {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Policy{
		config:       config,
		predictor:    p,
		orchestrator: o,
		entries:      make(map[string]*serviceEntry),
	}
}

func (p *Policy) entry(service string) *serviceEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[service]
	if !ok {
		e = &serviceEntry{slot: make(chan struct{}, 1)}
		p.entries[service] = e
	}
	return e
}

// State returns a copy of the scaling state of a service.
func (p *Policy) State(service string) (types.ServiceScalingState, bool) {
	p.mu.Lock()
	e, ok := p.entries[service]
	p.mu.Unlock()
	if !ok {
		return types.ServiceScalingState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Config returns the active decision parameters.
func (p *Policy) Config() Config {
	return p.config
}

// Decide runs one decision cycle for a service. It always returns a
// populated recommendation; failures are reflected in Reason and Error.
func (p *Policy) Decide(ctx context.Context, service string, summary *types.MetricSummary, now time.Time) *types.ScalingRecommendation {
	rec := &types.ScalingRecommendation{
		ID:        uuid.NewString(),
		Service:   service,
		Action:    types.ActionNone,
		Timestamp: now,
	}

	e := p.entry(service)
	select {
	case e.slot <- struct{}{}:
		defer func() { <-e.slot }()
	case <-ctx.Done():
		rec.Reason = "decision cancelled"
		rec.Error = ctx.Err().Error()
		return rec
	}

	current, err := p.currentReplicas(ctx, service)
	rec.CurrentReplicas = current
	currentKnown := err == nil

	features := types.NewFeatureVector(summary, now)
	klog.V(4).InfoS("Computed features", "service", service, "features", features.AsMap())
	pred, err := p.predict(ctx, features)
	if err != nil {
		klog.ErrorS(err, "Prediction failed", "service", service)
		rec.RecommendedReplicas = p.config.Constraints.Clamp(current)
		rec.Confidence = 0
		rec.Reason = ReasonNoPrediction
		return rec
	}

	rec.ModelVersion = pred.ModelVersion
	rec.Confidence = sanitizeConfidence(pred.Confidence)
	rec.RecommendedReplicas = p.config.Constraints.Clamp(pred.Replicas)
	if rec.RecommendedReplicas != pred.Replicas {
		klog.V(4).InfoS("Clamped predicted replicas", "service", service, "predicted", pred.Replicas, "recommended", rec.RecommendedReplicas)
	}

	switch {
	case rec.RecommendedReplicas > current:
		rec.Action = types.ActionScaleUp
	case rec.RecommendedReplicas < current:
		rec.Action = types.ActionScaleDown
	default:
		rec.Action = types.ActionNone
	}

	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	if remaining := p.cooldownRemaining(state, now); remaining > 0 {
		rec.Action = types.ActionNone
		rec.CooldownActive = true
		rec.Reason = fmt.Sprintf("%s (%s remaining)", ReasonCooldown, remaining.Round(time.Second))
		klog.V(4).InfoS("Scaling suppressed by cooldown", "service", service, "remaining", remaining)
		return rec
	}

	switch {
	case rec.Action == types.ActionNone:
		rec.Reason = ReasonAtTarget
		return rec
	case rec.Confidence < p.config.ConfidenceThreshold:
		rec.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", rec.Confidence, p.config.ConfidenceThreshold)
		return rec
	}

	rec.Reason = fmt.Sprintf("predicted load requires %d replicas", rec.RecommendedReplicas)
	if !currentKnown {
		rec.Reason += " (current replicas unknown)"
	}
	if err := p.setReplicas(ctx, service, rec.RecommendedReplicas); err != nil {
		klog.ErrorS(err, "Failed to scale", "service", service, "from", current, "to", rec.RecommendedReplicas)
		rec.Executed = false
		rec.Error = err.Error()
		rec.Reason = fmt.Sprintf("scaling failed: %v", err)
		return rec
	}

	e.mu.Lock()
	e.state.LastScalingTime = now
	e.state.LastAction = rec.Action
	e.mu.Unlock()
	rec.Executed = true

	klog.InfoS("Scaled service", "service", service, "action", rec.Action,
		"from", current, "to", rec.RecommendedReplicas, "confidence", rec.Confidence)
	return rec
}

func (p *Policy) cooldownRemaining(state types.ServiceScalingState, now time.Time) time.Duration {
	if state.LastScalingTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(state.LastScalingTime)
	if elapsed >= p.config.Cooldown {
		return 0
	}
	return p.config.Cooldown - elapsed
}

// currentReplicas falls back to one replica when the orchestrator cannot answer.
func (p *Policy) currentReplicas(ctx context.Context, service string) (int32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	current, err := p.orchestrator.GetReplicas(callCtx, service)
	if err != nil {
		klog.ErrorS(err, "Failed to get current replicas, assuming 1", "service", service)
		return 1, err
	}
	return current, nil
}

func (p *Policy) predict(ctx context.Context, features types.FeatureVector) (*predictor.Prediction, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	pred, err := p.predictor.Predict(callCtx, features)
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return nil, fmt.Errorf("%w: empty prediction", types.ErrPredictionUnavailable)
	}
	return pred, nil
}

func (p *Policy) setReplicas(ctx context.Context, service string, replicas int32) error {
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	return p.orchestrator.SetReplicas(callCtx, service, replicas)
}

func sanitizeConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}
