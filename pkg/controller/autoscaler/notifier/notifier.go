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

package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

type EventKind string

const (
	KindAlert        EventKind = "alert"
	KindScaling      EventKind = "scaling"
	KindScalingError EventKind = "scaling_error"
)

// Event is the transport-neutral notification payload.
type Event struct {
	ID        string            `json:"id"`
	Service   string            `json:"service"`
	Kind      EventKind         `json:"kind"`
	AlertKind types.AlertKind   `json:"alert_kind,omitempty"`
	Severity  types.Severity    `json:"severity,omitempty"`
	Message   string            `json:"message"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Notifier delivers events. Delivery is best effort: callers log failures
// and never retry. Failures wrap types.ErrNotifier.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// FromAlert converts an alert into a notification event.
func FromAlert(alert types.AlertEvent) Event {
	return Event{
		ID:        alert.ID,
		Service:   alert.Service,
		Kind:      KindAlert,
		AlertKind: alert.Kind,
		Severity:  alert.Severity,
		Message:   alert.Message,
		Value:     alert.TriggeringValue,
		Timestamp: alert.Timestamp,
	}
}

// FromRecommendation converts an executed or failed scaling outcome into a
// notification event.
func FromRecommendation(rec *types.ScalingRecommendation) Event {
	ev := Event{
		ID:        rec.ID,
		Service:   rec.Service,
		Kind:      KindScaling,
		Severity:  types.SeverityMedium,
		Value:     float64(rec.RecommendedReplicas),
		Timestamp: rec.Timestamp,
		Details: map[string]string{
			"action":     string(rec.Action),
			"current":    fmt.Sprintf("%d", rec.CurrentReplicas),
			"target":     fmt.Sprintf("%d", rec.RecommendedReplicas),
			"confidence": fmt.Sprintf("%.2f", rec.Confidence),
		},
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if rec.Executed {
		ev.Message = fmt.Sprintf("Scaled %s from %d to %d replicas (%s)",
			rec.Service, rec.CurrentReplicas, rec.RecommendedReplicas, rec.Reason)
		return ev
	}
	ev.Kind = KindScalingError
	ev.Severity = types.SeverityHigh
	ev.Message = fmt.Sprintf("Failed to scale %s from %d to %d replicas: %s",
		rec.Service, rec.CurrentReplicas, rec.RecommendedReplicas, rec.Error)
	return ev
}

// Log writes events to the structured log. It never fails.
type Log struct{}

func (Log) Send(_ context.Context, event Event) error {
	klog.InfoS("Notification", "service", event.Service, "kind", event.Kind,
		"severity", event.Severity, "message", event.Message, "value", event.Value)
	return nil
}

// Multi fans an event out to every notifier. All notifiers are attempted;
// the returned error joins the individual failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", types.ErrNotifier, errors.Join(errs...))
}
