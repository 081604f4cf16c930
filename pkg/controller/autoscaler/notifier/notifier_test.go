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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func testAlert() types.AlertEvent {
	return types.AlertEvent{
		ID:              "a-1",
		Service:         "api",
		Kind:            types.AlertCPUHigh,
		Severity:        types.SeverityCritical,
		Message:         "Critical CPU usage: 92.0%",
		TriggeringValue: 92,
		Timestamp:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFromRecommendation(t *testing.T) {
	rec := &types.ScalingRecommendation{
		Service:             "api",
		CurrentReplicas:     2,
		RecommendedReplicas: 5,
		Action:              types.ActionScaleUp,
		Executed:            true,
		Reason:              "predicted load",
	}
	ev := FromRecommendation(rec)
	assert.Equal(t, KindScaling, ev.Kind)
	assert.NotEmpty(t, ev.ID)
	assert.Contains(t, ev.Message, "from 2 to 5")
	assert.Equal(t, "scale_up", ev.Details["action"])

	rec.Executed = false
	rec.Error = "orchestrator unreachable: timeout"
	ev = FromRecommendation(rec)
	assert.Equal(t, KindScalingError, ev.Kind)
	assert.Equal(t, types.SeverityHigh, ev.Severity)
	assert.Contains(t, ev.Message, "timeout")
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}
	m := Multi{bad, ok, Log{}}

	err := m.Send(context.Background(), FromAlert(testAlert()))
	assert.True(t, errors.Is(err, types.ErrNotifier))
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())

	assert.NoError(t, Multi{ok}.Send(context.Background(), FromAlert(testAlert())))
}

func TestSlack(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, 10, 1)
	require.NoError(t, s.Send(context.Background(), FromAlert(testAlert())))
	assert.Contains(t, got.Text, "[api]")
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "danger", got.Attachments[0].Color)
}

func TestSlackFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, 10, 1)
	err := s.Send(context.Background(), FromAlert(testAlert()))
	assert.True(t, errors.Is(err, types.ErrNotifier))
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestAMQP(t *testing.T) {
	pub := &fakePublisher{}
	a := &AMQP{channel: pub, exchange: DefaultExchange}

	require.NoError(t, a.Send(context.Background(), FromAlert(testAlert())))
	assert.Equal(t, DefaultExchange, pub.exchange)
	assert.Equal(t, "alert.api", pub.key)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "a-1", pub.msg.MessageId)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.msg.Body, &ev))
	assert.Equal(t, types.AlertCPUHigh, ev.AlertKind)

	pub.err = errors.New("channel closed")
	assert.True(t, errors.Is(a.Send(context.Background(), FromAlert(testAlert())), types.ErrNotifier))
}

func TestDeduplicator(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &recordingNotifier{}
	d := NewDeduplicator(next, rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, d.Send(ctx, FromAlert(testAlert())))
	require.NoError(t, d.Send(ctx, FromAlert(testAlert())))
	assert.Equal(t, 1, next.count())

	// a different severity is a different alert
	medium := testAlert()
	medium.Severity = types.SeverityMedium
	require.NoError(t, d.Send(ctx, FromAlert(medium)))
	assert.Equal(t, 2, next.count())

	// scaling events are never suppressed
	rec := &types.ScalingRecommendation{Service: "api", Executed: true, Action: types.ActionScaleUp}
	require.NoError(t, d.Send(ctx, FromRecommendation(rec)))
	require.NoError(t, d.Send(ctx, FromRecommendation(rec)))
	assert.Equal(t, 4, next.count())

	mr.FastForward(2 * time.Minute)
	require.NoError(t, d.Send(ctx, FromAlert(testAlert())))
	assert.Equal(t, 5, next.count())

	// fail open when redis is gone
	mr.Close()
	require.NoError(t, d.Send(ctx, FromAlert(testAlert())))
	assert.Equal(t, 6, next.count())
}
