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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

const dedupKeyPrefix = "autoserve:notify:dedup"

// Deduplicator suppresses repeats of the same alert (service, kind,
// severity) within a TTL. Scaling events always pass through. If redis is
// unreachable the event is delivered anyway.
type Deduplicator struct {
	next  Notifier
	redis redis.UniversalClient
	ttl   time.Duration
}

var _ Notifier = &Deduplicator{}

func NewDeduplicator(next Notifier, client redis.UniversalClient, ttl time.Duration) *Deduplicator {
	return &Deduplicator{next: next, redis: client, ttl: ttl}
}

func dedupKey(event Event) string {
	return fmt.Sprintf("%s:%s:%s:%s", dedupKeyPrefix, event.Service, event.AlertKind, event.Severity)
}

func (d *Deduplicator) Send(ctx context.Context, event Event) error {
	if event.Kind != KindAlert || d.ttl <= 0 {
		return d.next.Send(ctx, event)
	}

	first, err := d.redis.SetNX(ctx, dedupKey(event), event.ID, d.ttl).Result()
	if err != nil {
		klog.ErrorS(err, "Alert deduplication unavailable, delivering anyway", "service", event.Service, "alert", event.AlertKind)
		return d.next.Send(ctx, event)
	}
	if !first {
		klog.V(4).InfoS("Suppressed duplicate alert", "service", event.Service, "alert", event.AlertKind, "severity", event.Severity)
		return nil
	}
	return d.next.Send(ctx, event)
}
