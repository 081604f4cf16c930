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
	"sort"
	"sync"
	"time"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Source returns the raw samples of a service within a trailing window.
// Failures wrap types.ErrMetricsUnavailable; an empty result is not an error.
type Source interface {
	Fetch(ctx context.Context, service string, window time.Duration) ([]types.MetricSample, error)
}

// MemorySource buffers pushed samples per service and drops anything older
// than maxAge on every write.
type MemorySource struct {
	mu      sync.RWMutex
	history map[string][]types.MetricSample
	maxAge  time.Duration
	now     func() time.Time
}

var _ Source = &MemorySource{}

func NewMemorySource(maxAge time.Duration) *MemorySource {
	return &MemorySource{
		history: make(map[string][]types.MetricSample),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Record stores samples. Samples without a timestamp are stamped with the
// current time; samples without a service are dropped.
func (m *MemorySource) Record(samples ...types.MetricSample) int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := 0
	touched := make(map[string]bool)
	for _, s := range samples {
		if s.Service == "" {
			continue
		}
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		m.history[s.Service] = append(m.history[s.Service], s)
		touched[s.Service] = true
		stored++
	}

	cutoff := now.Add(-m.maxAge)
	for service := range touched {
		h := m.history[service]
		sort.SliceStable(h, func(i, j int) bool { return h[i].Timestamp.Before(h[j].Timestamp) })
		validStart := sort.Search(len(h), func(i int) bool { return h[i].Timestamp.After(cutoff) })
		m.history[service] = h[validStart:]
	}
	return stored
}

func (m *MemorySource) Fetch(ctx context.Context, service string, window time.Duration) ([]types.MetricSample, error) {
	cutoff := m.now().Add(-window)
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.history[service]
	out := make([]types.MetricSample, 0, len(h))
	for _, s := range h {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Services lists the services with buffered samples.
func (m *MemorySource) Services() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.history))
	for service, h := range m.history {
		if len(h) > 0 {
			out = append(out, service)
		}
	}
	sort.Strings(out)
	return out
}
