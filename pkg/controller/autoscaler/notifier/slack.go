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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

var severityColors = map[types.Severity]string{
	types.SeverityMedium:   "warning",
	types.SeverityHigh:     "danger",
	types.SeverityCritical: "danger",
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

// Slack posts events to an incoming webhook. Requests are rate limited so
// an alert storm cannot exhaust the webhook quota.
type Slack struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

var _ Notifier = &Slack{}

// NewSlack creates a webhook notifier allowing perSecond requests with the given burst.
func NewSlack(webhookURL string, perSecond float64, burst int) *Slack {
	if burst < 1 {
		burst = 1
	}
	return &Slack{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *Slack) Send(ctx context.Context, event Event) error {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: slack rate limit: %v", types.ErrNotifier, err)
	}

	msg := slackMessage{
		Text: fmt.Sprintf("[%s] %s", event.Service, event.Message),
		Attachments: []slackAttachment{{
			Color: severityColors[event.Severity],
			Title: fmt.Sprintf("%s %s", event.Kind, event.AlertKind),
			Text:  event.Message,
			Fields: []slackField{
				{Title: "Service", Value: event.Service, Short: true},
				{Title: "Severity", Value: string(event.Severity), Short: true},
				{Title: "Value", Value: fmt.Sprintf("%.2f", event.Value), Short: true},
			},
			Ts: event.Timestamp.Unix(),
		}},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotifier, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotifier, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: slack webhook: %v", types.ErrNotifier, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: slack webhook returned %s", types.ErrNotifier, resp.Status)
	}
	return nil
}
