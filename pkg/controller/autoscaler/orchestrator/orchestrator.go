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

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// Orchestrator provides the mechanism to read and set replica counts, while
// the scaling policy decides what the count should be. Failures wrap
// types.ErrOrchestratorUnreachable.
type Orchestrator interface {
	// GetReplicas returns the current replica count of a service
	GetReplicas(ctx context.Context, service string) (int32, error)

	// SetReplicas requests a new replica count for a service
	SetReplicas(ctx context.Context, service string, replicas int32) error

	// Kind names the backend, used in health reporting
	Kind() string
}

// Simulated keeps replica counts in memory. Unknown services start at the
// default replica count.
type Simulated struct {
	mu              sync.RWMutex
	replicas        map[string]int32
	defaultReplicas int32
}

var _ Orchestrator = &Simulated{}

func NewSimulated(defaultReplicas int32) *Simulated {
	if defaultReplicas < 1 {
		defaultReplicas = 1
	}
	return &Simulated{
		replicas:        make(map[string]int32),
		defaultReplicas: defaultReplicas,
	}
}

func (s *Simulated) GetReplicas(ctx context.Context, service string) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrOrchestratorUnreachable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.replicas[service]; ok {
		return r, nil
	}
	return s.defaultReplicas, nil
}

func (s *Simulated) SetReplicas(ctx context.Context, service string, replicas int32) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrOrchestratorUnreachable, err)
	}
	if replicas < 0 {
		return fmt.Errorf("invalid replica count %d for %s", replicas, service)
	}
	s.mu.Lock()
	s.replicas[service] = replicas
	s.mu.Unlock()
	klog.InfoS("Scaled simulated service", "service", service, "replicas", replicas)
	return nil
}

func (s *Simulated) Kind() string {
	return "simulated"
}
