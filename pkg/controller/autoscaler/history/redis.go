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

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

// RedisStore keeps one capped list per service plus a combined list.
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	capacity int64
}

var _ Store = &RedisStore{}

func NewRedisStore(client redis.UniversalClient, prefix string, capacity int) *RedisStore {
	if prefix == "" {
		prefix = "autoserve:history"
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisStore{client: client, prefix: prefix, capacity: int64(capacity)}
}

func (r *RedisStore) key(service string) string {
	if service == "" {
		return fmt.Sprintf("%s:all", r.prefix)
	}
	return fmt.Sprintf("%s:svc:%s", r.prefix, service)
}

func (r *RedisStore) Append(ctx context.Context, rec *types.ScalingRecommendation) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recommendation: %w", err)
	}

	pipe := r.client.TxPipeline()
	for _, key := range []string{r.key(rec.Service), r.key("")} {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, r.capacity-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", rec.Service, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, service string, limit int) ([]types.ScalingRecommendation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := r.client.LRange(ctx, r.key(service), 0, stop).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []types.ScalingRecommendation{}, nil
		}
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	out := make([]types.ScalingRecommendation, 0, len(raw))
	for _, item := range raw {
		var rec types.ScalingRecommendation
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			klog.V(4).InfoS("Skipping undecodable history record", "key", r.key(service), "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
