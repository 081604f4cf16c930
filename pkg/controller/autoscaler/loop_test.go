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
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/alerting"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/history"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/metrics"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/notifier"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/orchestrator"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/policy"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/predictor"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

type predictFunc func(ctx context.Context, fv types.FeatureVector) (*predictor.Prediction, error)

func (f predictFunc) Predict(ctx context.Context, fv types.FeatureVector) (*predictor.Prediction, error) {
	return f(ctx, fv)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (r *recordingNotifier) Send(_ context.Context, event notifier.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Events() []notifier.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifier.Event(nil), r.events...)
}

// CPU markers let the predictor tell services apart.
const (
	brokenCPU = 13
	slowCPU   = 77
)

func recordWindow(src *metrics.MemorySource, service string, cpu, requests, errs float64) {
	ts := time.Now().Add(-time.Minute)
	src.Record(
		types.MetricSample{Service: service, MetricName: types.MetricCPUUsage, Value: cpu, Timestamp: ts},
		types.MetricSample{Service: service, MetricName: types.MetricMemoryUsage, Value: 40, Timestamp: ts},
		types.MetricSample{Service: service, MetricName: types.MetricRequestCount, Value: requests, Timestamp: ts},
		types.MetricSample{Service: service, MetricName: types.MetricErrorCount, Value: errs, Timestamp: ts},
	)
}

var _ = Describe("ScalingLoop", func() {
	var (
		src     *metrics.MemorySource
		orch    *orchestrator.Simulated
		notify  *recordingNotifier
		store   *history.MemoryStore
		loop    *ScalingLoop
		release chan struct{}
		entered chan struct{}
	)

	BeforeEach(func() {
		src = metrics.NewMemorySource(time.Hour)
		orch = orchestrator.NewSimulated(2)
		notify = &recordingNotifier{}
		store = history.NewMemoryStore(100)
		release = make(chan struct{})
		entered = make(chan struct{}, 1)

		pred := predictFunc(func(ctx context.Context, fv types.FeatureVector) (*predictor.Prediction, error) {
			cpu, _ := fv.Get(types.FeatureAvgCPU)
			switch cpu {
			case brokenCPU:
				return nil, fmt.Errorf("%w: model crashed", types.ErrPredictionUnavailable)
			case slowCPU:
				entered <- struct{}{}
				<-release
			}
			return &predictor.Prediction{Replicas: 5, Confidence: 0.9, ModelVersion: "test"}, nil
		})

		cfg := policy.DefaultConfig()
		cfg.CallTimeout = 2 * time.Second

		var err error
		loop, err = NewScalingLoop(Options{
			Services:       []string{"api", "broken", "empty"},
			PollInterval:   20 * time.Millisecond,
			Window:         5 * time.Minute,
			MaxConcurrency: 2,
			CallTimeout:    2 * time.Second,
		}, Components{
			Source:       src,
			Evaluator:    alerting.NewEvaluator(alerting.DefaultThresholds()),
			Policy:       policy.New(cfg, pred, orch),
			Orchestrator: orch,
			Notifier:     notify,
			History:      store,
		})
		Expect(err).NotTo(HaveOccurred())

		recordWindow(src, "api", 92, 1000, 20)
		recordWindow(src, "broken", brokenCPU, 100, 0)
	})

	It("rejects incomplete configuration", func() {
		_, err := NewScalingLoop(Options{PollInterval: time.Second}, Components{})
		Expect(err).To(HaveOccurred())
	})

	It("scales up the api service end to end", func() {
		report := loop.RunOnce(context.Background(), time.Now())

		rec := report.Recommendations["api"]
		Expect(rec).NotTo(BeNil())
		Expect(rec.Action).To(Equal(types.ActionScaleUp))
		Expect(rec.CurrentReplicas).To(Equal(int32(2)))
		Expect(rec.RecommendedReplicas).To(Equal(int32(5)))
		Expect(rec.Executed).To(BeTrue())

		// error rate is 2%, so only the cpu alert fires
		Expect(report.Alerts["api"]).To(HaveLen(1))
		Expect(report.Alerts["api"][0].Kind).To(Equal(types.AlertCPUHigh))
		Expect(report.Alerts["api"][0].Severity).To(Equal(types.SeverityCritical))

		replicas, err := orch.GetReplicas(context.Background(), "api")
		Expect(err).NotTo(HaveOccurred())
		Expect(replicas).To(Equal(int32(5)))

		state, ok := loop.Policy.State("api")
		Expect(ok).To(BeTrue())
		Expect(state.LastScalingTime).To(Equal(rec.Timestamp))

		loop.WaitForBackground()
		kinds := map[notifier.EventKind]int{}
		for _, ev := range notify.Events() {
			kinds[ev.Kind]++
		}
		Expect(kinds[notifier.KindAlert]).To(BeNumerically(">=", 1))
		Expect(kinds[notifier.KindScaling]).To(Equal(1))
	})

	It("keeps other services going when one prediction fails", func() {
		report := loop.RunOnce(context.Background(), time.Now())

		broken := report.Recommendations["broken"]
		Expect(broken).NotTo(BeNil())
		Expect(broken.Action).To(Equal(types.ActionNone))
		Expect(broken.Confidence).To(Equal(0.0))
		Expect(broken.Reason).To(Equal(policy.ReasonNoPrediction))
		Expect(broken.Executed).To(BeFalse())

		Expect(report.Recommendations["api"].Executed).To(BeTrue())
		Expect(report.Errors["empty"]).To(MatchError(types.ErrInsufficientData))

		records, err := store.List(context.Background(), "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
	})

	It("does not notify for suppressed decisions", func() {
		now := time.Now()
		loop.RunOnce(context.Background(), now)
		loop.WaitForBackground()
		before := len(notify.Events())

		// inside the cooldown window: api only re-alerts, no scaling event
		report := loop.RunOnce(context.Background(), now.Add(time.Minute))
		Expect(report.Recommendations["api"].CooldownActive).To(BeTrue())
		loop.WaitForBackground()
		for _, ev := range notify.Events()[before:] {
			Expect(ev.Kind).To(Equal(notifier.KindAlert))
		}
	})

	It("skips a service whose previous cycle is still running", func() {
		recordWindow(src, "slow", slowCPU, 100, 0)
		loop.opts.Services = []string{"slow"}

		done := make(chan *CycleReport)
		go func() { done <- loop.RunOnce(context.Background(), time.Now()) }()
		Eventually(entered).Should(Receive())

		report := loop.RunOnce(context.Background(), time.Now())
		Expect(report.Skipped).To(ConsistOf("slow"))
		Expect(report.Recommendations).To(BeEmpty())

		close(release)
		var first *CycleReport
		Eventually(done).Should(Receive(&first))
		Expect(first.Recommendations).To(HaveKey("slow"))
	})

	It("decides now with caller provided metrics", func() {
		summary := &types.MetricSummary{AvgCPU: 92, RequestCount: 1000, ErrorCount: 20, ErrorRate: 0.02}
		rec, err := loop.DecideNow(context.Background(), "adhoc", summary)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Executed).To(BeTrue())

		_, err = loop.DecideNow(context.Background(), "empty", nil)
		Expect(err).To(MatchError(types.ErrInsufficientData))

		_, err = loop.DecideNow(context.Background(), "", summary)
		Expect(err).To(HaveOccurred())
	})

	It("scales manually within bounds without touching cooldown", func() {
		rec, err := loop.ManualScale(context.Background(), "api", 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Executed).To(BeTrue())
		Expect(rec.Action).To(Equal(types.ActionScaleUp))

		_, ok := loop.Policy.State("api")
		Expect(ok).To(BeFalse())

		_, err = loop.ManualScale(context.Background(), "api", 11)
		Expect(err).To(HaveOccurred())

		records, _ := store.List(context.Background(), "api", 1)
		Expect(records).To(HaveLen(1))
		Expect(records[0].Reason).To(Equal("manual scaling"))
	})

	It("runs on a schedule and drains on shutdown", func() {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan error, 1)
		go func() { stopped <- loop.Start(ctx) }()

		Eventually(func() int {
			records, _ := store.List(context.Background(), "api", 0)
			return len(records)
		}).Should(BeNumerically(">=", 2))

		Expect(loop.Start(ctx)).To(HaveOccurred())

		cancel()
		Eventually(stopped).Should(Receive(BeNil()))
	})
})
