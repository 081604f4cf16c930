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

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// DeploymentScaler scales the Deployment backing each service. A service maps
// onto the Deployment of the same name unless Targets overrides it.
type DeploymentScaler struct {
	client    client.Client
	namespace string
	targets   map[string]string
}

var _ Orchestrator = &DeploymentScaler{}

func NewDeploymentScaler(c client.Client, namespace string, targets map[string]string) *DeploymentScaler {
	if namespace == "" {
		namespace = "default"
	}
	return &DeploymentScaler{
		client:    c,
		namespace: namespace,
		targets:   targets,
	}
}

func (s *DeploymentScaler) key(service string) client.ObjectKey {
	name := service
	if t, ok := s.targets[service]; ok && t != "" {
		name = t
	}
	return client.ObjectKey{Namespace: s.namespace, Name: name}
}

func (s *DeploymentScaler) GetReplicas(ctx context.Context, service string) (int32, error) {
	deploy := &appsv1.Deployment{}
	if err := s.client.Get(ctx, s.key(service), deploy); err != nil {
		return 0, wrapUnreachable(service, err)
	}
	// an unset spec.replicas defaults to 1 on the apiserver
	return ptr.Deref(deploy.Spec.Replicas, 1), nil
}

func (s *DeploymentScaler) SetReplicas(ctx context.Context, service string, replicas int32) error {
	key := s.key(service)
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cur := &appsv1.Deployment{}
		if err := s.client.Get(ctx, key, cur); err != nil {
			return err
		}
		if ptr.Deref(cur.Spec.Replicas, 1) == replicas {
			return nil
		}
		upd := cur.DeepCopy()
		upd.Spec.Replicas = ptr.To(replicas)
		return s.client.Patch(ctx, upd, client.MergeFrom(cur))
	})
	if err != nil {
		return wrapUnreachable(service, err)
	}
	klog.InfoS("Scaled resource", "kind", "Deployment", "name", key.Name, "ns", key.Namespace, "replicas", replicas)
	return nil
}

func (s *DeploymentScaler) Kind() string {
	return "kubernetes"
}

func wrapUnreachable(service string, err error) error {
	if apierrors.IsNotFound(err) {
		return fmt.Errorf("%w: deployment for service %s not found: %v", types.ErrOrchestratorUnreachable, service, err)
	}
	return fmt.Errorf("%w: service %s: %v", types.ErrOrchestratorUnreachable, service, err)
}
