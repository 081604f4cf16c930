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

package autoscaler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/aggregation"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/alerting"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/history"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/metrics"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/monitor"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/notifier"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/orchestrator"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/policy"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/predictor"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Options configures the scheduling side of the loop.
type Options struct {
	Services     []string
	PollInterval time.Duration
	// Window is the trailing metrics window fetched each cycle.
	Window         time.Duration
	MaxConcurrency int
	// CallTimeout bounds metric fetches and notification delivery.
	CallTimeout time.Duration
	// ModelReloadInterval enables periodic model reloads when positive.
	ModelReloadInterval time.Duration
}

// Reloader is implemented by predictors whose model can be reloaded.
type Reloader interface {
	Reload() (predictor.ModelInfo, error)
}

// Components are the collaborators driven by the loop. Notifier, History,
// Monitor and Reloader are optional.
type Components struct {
	Source       metrics.Source
	Evaluator    *alerting.Evaluator
	Policy       *policy.Policy
	Orchestrator orchestrator.Orchestrator
	Notifier     notifier.Notifier
	History      history.Store
	Monitor      *monitor.Monitor
	Reloader     Reloader
}

// CycleReport summarizes one RunOnce pass.
type CycleReport struct {
	Recommendations map[string]*types.ScalingRecommendation
	Alerts          map[string][]types.AlertEvent
	Errors          map[string]error
	Skipped         []string
}

// ScalingLoop periodically runs the metrics, alerting and decision pipeline
// for every monitored service.
type ScalingLoop struct {
	opts Options
	Components
	now func() time.Time

	started atomic.Bool

	mu       sync.Mutex
	inFlight map[string]bool

	// background tracks in-flight cycles and notifications so shutdown can drain them.
	background sync.WaitGroup
}

func NewScalingLoop(opts Options, c Components) (*ScalingLoop, error) {
	if c.Source == nil || c.Evaluator == nil || c.Policy == nil || c.Orchestrator == nil {
		return nil, fmt.Errorf("source, evaluator, policy and orchestrator are required")
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", opts.PollInterval)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	if opts.Window <= 0 {
		opts.Window = 5 * time.Minute
	}
	if c.Notifier == nil {
		c.Notifier = notifier.Log{}
	}
	if c.History == nil {
		c.History = history.NewMemoryStore(history.DefaultCapacity)
	}
	if c.Monitor == nil {
		c.Monitor = monitor.New()
	}
	return &ScalingLoop{
		opts:       opts,
		Components: c,
		now:        time.Now,
		inFlight:   make(map[string]bool),
	}, nil
}

// Window returns the trailing metrics window fetched each cycle.
func (l *ScalingLoop) Window() time.Duration {
	return l.opts.Window
}

// Services returns the monitored services.
func (l *ScalingLoop) Services() []string {
	return append([]string(nil), l.opts.Services...)
}

// Start runs a cycle immediately and then on every poll interval until ctx is
// done. In-flight cycles are allowed to finish on a detached context before
// Start returns.
func (l *ScalingLoop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return fmt.Errorf("scaling loop already started")
	}
	klog.InfoS("Starting scaling loop", "services", l.opts.Services, "interval", l.opts.PollInterval,
		"window", l.opts.Window, "maxConcurrency", l.opts.MaxConcurrency)

	detached := context.WithoutCancel(ctx)
	tick := func() {
		l.background.Add(1)
		go func() {
			defer l.background.Done()
			l.RunOnce(detached, l.now())
		}()
	}

	ticker := time.NewTicker(l.opts.PollInterval)
	defer ticker.Stop()

	var reload <-chan time.Time
	if l.opts.ModelReloadInterval > 0 && l.Reloader != nil {
		reloadTicker := time.NewTicker(l.opts.ModelReloadInterval)
		defer reloadTicker.Stop()
		reload = reloadTicker.C
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			klog.InfoS("Stopping scaling loop, waiting for in-flight cycles")
			l.background.Wait()
			klog.InfoS("Scaling loop stopped")
			return nil
		case <-ticker.C:
			tick()
		case <-reload:
			l.reloadModel()
		}
	}
}

func (l *ScalingLoop) reloadModel() {
	info, err := l.Reloader.Reload()
	if err != nil {
		klog.ErrorS(err, "Periodic model reload failed, keeping current model")
		return
	}
	klog.InfoS("Reloaded model", "name", info.Name, "version", info.Version)
}

// RunOnce processes every monitored service concurrently, bounded by
// MaxConcurrency. A service whose previous cycle is still running is skipped.
// Failures are contained to their service.
func (l *ScalingLoop) RunOnce(ctx context.Context, now time.Time) *CycleReport {
	report := &CycleReport{
		Recommendations: make(map[string]*types.ScalingRecommendation),
		Alerts:          make(map[string][]types.AlertEvent),
		Errors:          make(map[string]error),
	}
	var reportMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(l.opts.MaxConcurrency)
	for _, service := range l.opts.Services {
		service := service
		if !l.tryAcquire(service) {
			klog.V(4).InfoS("Previous cycle still running, skipping service", "service", service)
			report.Skipped = append(report.Skipped, service)
			continue
		}
		g.Go(func() error {
			defer l.release(service)
			rec, alerts, err := l.processService(ctx, service, now)

			reportMu.Lock()
			defer reportMu.Unlock()
			if len(alerts) > 0 {
				report.Alerts[service] = alerts
			}
			if err != nil {
				report.Errors[service] = err
				return nil
			}
			report.Recommendations[service] = rec
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Skipped)
	return report
}

func (l *ScalingLoop) tryAcquire(service string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight[service] {
		return false
	}
	l.inFlight[service] = true
	return true
}

func (l *ScalingLoop) release(service string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, service)
}

func (l *ScalingLoop) processService(ctx context.Context, service string, now time.Time) (*types.ScalingRecommendation, []types.AlertEvent, error) {
	start := time.Now()
	defer func() { l.Monitor.ObserveCycle(service, time.Since(start)) }()

	summary, err := l.fetchSummary(ctx, service)
	if err != nil {
		if types.IsSkippable(err) {
			klog.V(4).InfoS("Skipping service", "service", service, "reason", err.Error())
		} else {
			klog.ErrorS(err, "Failed to collect metrics", "service", service)
			l.Monitor.RecordCycleError(service, "metrics")
		}
		return nil, nil, err
	}

	alerts := l.evaluateAlerts(service, summary)
	rec := l.Policy.Decide(ctx, service, summary, now)
	l.record(rec)
	return rec, alerts, nil
}

func (l *ScalingLoop) fetchSummary(ctx context.Context, service string) (*types.MetricSummary, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()
	samples, err := l.Source.Fetch(fetchCtx, service, l.opts.Window)
	if err != nil {
		if !errors.Is(err, types.ErrMetricsUnavailable) {
			err = fmt.Errorf("%w: %v", types.ErrMetricsUnavailable, err)
		}
		return nil, err
	}
	return aggregation.Summarize(service, samples)
}

func (l *ScalingLoop) evaluateAlerts(service string, summary *types.MetricSummary) []types.AlertEvent {
	alerts := l.Evaluator.Evaluate(service, summary)
	for _, alert := range alerts {
		klog.InfoS("Alert raised", "service", service, "kind", alert.Kind, "severity", alert.Severity, "value", alert.TriggeringValue)
		l.Monitor.RecordAlert(alert)
		l.notify(notifier.FromAlert(alert))
	}
	return alerts
}

// record publishes the outcome of a decision to history, metrics and, for
// executed or failed dispatches, the notifier.
func (l *ScalingLoop) record(rec *types.ScalingRecommendation) {
	l.Monitor.RecordRecommendation(rec)
	if rec.Failed() {
		l.Monitor.RecordCycleError(rec.Service, "orchestrator")
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.opts.CallTimeout)
	defer cancel()
	if err := l.History.Append(ctx, rec); err != nil {
		klog.ErrorS(err, "Failed to record scaling history", "service", rec.Service)
	}

	if rec.Executed || rec.Failed() {
		l.notify(notifier.FromRecommendation(rec))
	}
}

// notify delivers asynchronously so a slow transport never delays a cycle.
func (l *ScalingLoop) notify(event notifier.Event) {
	l.background.Add(1)
	go func() {
		defer l.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.opts.CallTimeout)
		defer cancel()
		if err := l.Notifier.Send(ctx, event); err != nil {
			klog.ErrorS(err, "Failed to deliver notification", "service", event.Service, "kind", event.Kind)
		}
	}()
}

// DecideNow runs a single decision for a service outside the schedule. When
// summary is nil the metrics source is queried first.
func (l *ScalingLoop) DecideNow(ctx context.Context, service string, summary *types.MetricSummary) (*types.ScalingRecommendation, error) {
	if service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if summary == nil {
		var err error
		summary, err = l.fetchSummary(ctx, service)
		if err != nil {
			return nil, err
		}
	}
	l.evaluateAlerts(service, summary)
	rec := l.Policy.Decide(ctx, service, summary, l.now())
	l.record(rec)
	return rec, nil
}

// ManualScale sets the replica count of a service directly. The request must
// fall within the replica bounds. Cooldown state is not touched.
func (l *ScalingLoop) ManualScale(ctx context.Context, service string, replicas int32) (*types.ScalingRecommendation, error) {
	bounds := l.Policy.Config().Constraints
	if replicas < bounds.MinReplicas || replicas > bounds.MaxReplicas {
		return nil, fmt.Errorf("replicas %d outside of bounds [%d, %d]", replicas, bounds.MinReplicas, bounds.MaxReplicas)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()
	current, err := l.Orchestrator.GetReplicas(callCtx, service)
	if err != nil {
		klog.ErrorS(err, "Failed to get current replicas for manual scale", "service", service)
	}

	rec := &types.ScalingRecommendation{
		ID:                  uuid.NewString(),
		Service:             service,
		CurrentReplicas:     current,
		RecommendedReplicas: replicas,
		Confidence:          1,
		Action:              actionFor(current, replicas),
		Reason:              "manual scaling",
		Timestamp:           l.now(),
	}
	if rec.Action == types.ActionNone {
		rec.Reason = "manual scaling: " + policy.ReasonAtTarget
		l.record(rec)
		return rec, nil
	}

	if err := l.Orchestrator.SetReplicas(callCtx, service, replicas); err != nil {
		rec.Error = err.Error()
		rec.Reason = fmt.Sprintf("manual scaling failed: %v", err)
		l.record(rec)
		return rec, err
	}
	rec.Executed = true
	klog.InfoS("Manually scaled service", "service", service, "from", current, "to", replicas)
	l.record(rec)
	return rec, nil
}

func actionFor(current, target int32) types.ScalingAction {
	switch {
	case target > current:
		return types.ActionScaleUp
	case target < current:
		return types.ActionScaleDown
	default:
		return types.ActionNone
	}
}

// WaitForBackground blocks until queued notifications and cycles finish.
func (l *ScalingLoop) WaitForBackground() {
	l.background.Wait()
}
