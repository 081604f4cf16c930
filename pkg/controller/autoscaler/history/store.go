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

// Package history keeps a bounded, newest-first log of scaling recommendations.
package history

import (
	"context"
	"sync"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

const DefaultCapacity = 1000

// Store records recommendations. List returns newest first; an empty
// service lists all services.
type Store interface {
	Append(ctx context.Context, rec *types.ScalingRecommendation) error
	List(ctx context.Context, service string, limit int) ([]types.ScalingRecommendation, error)
}

// MemoryStore keeps at most capacity records, dropping the oldest.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []types.ScalingRecommendation
	capacity int
}

var _ Store = &MemoryStore{}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (m *MemoryStore) Append(_ context.Context, rec *types.ScalingRecommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	if over := len(m.records) - m.capacity; over > 0 {
		m.records = append(m.records[:0:0], m.records[over:]...)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, service string, limit int) ([]types.ScalingRecommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ScalingRecommendation, 0)
	for i := len(m.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if service == "" || m.records[i].Service == service {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}
