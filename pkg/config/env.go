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

package config

import (
	"fmt"
	"sort"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/autoserve/autoserve/pkg/utils"
)

const EnvPrefix = "AUTOSERVE_"

type envParser func(c *Config, value string) error

func parseFloat(dst *float64) func(string) error {
	return func(value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err == nil {
			*dst = v
		}
		return err
	}
}

func parseInt(dst *int) func(string) error {
	return func(value string) error {
		v, err := strconv.Atoi(value)
		if err == nil {
			*dst = v
		}
		return err
	}
}

func parseInt32(dst *int32) func(string) error {
	return func(value string) error {
		v, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			*dst = int32(v)
		}
		return err
	}
}

// envParsers maps environment variable names (without prefix) to their parsing functions
var envParsers = map[string]envParser{
	"CONFIDENCE_THRESHOLD": func(c *Config, v string) error { return parseFloat(&c.ConfidenceThreshold)(v) },
	"COOLDOWN_WINDOW_SECONDS": func(c *Config, v string) error {
		return parseInt(&c.CooldownWindowSeconds)(v)
	},
	"MIN_REPLICAS":           func(c *Config, v string) error { return parseInt32(&c.ReplicaBounds.Min)(v) },
	"MAX_REPLICAS":           func(c *Config, v string) error { return parseInt32(&c.ReplicaBounds.Max)(v) },
	"POLL_INTERVAL_SECONDS":  func(c *Config, v string) error { return parseInt(&c.PollIntervalSeconds)(v) },
	"METRICS_WINDOW_SECONDS": func(c *Config, v string) error { return parseInt(&c.MetricsWindowSeconds)(v) },
	"CALL_TIMEOUT_SECONDS":   func(c *Config, v string) error { return parseInt(&c.CallTimeoutSeconds)(v) },
	"MAX_CONCURRENCY":        func(c *Config, v string) error { return parseInt(&c.MaxConcurrency)(v) },
	"MONITORED_SERVICES": func(c *Config, v string) error {
		c.MonitoredServices = utils.SplitList(v)
		return nil
	},
	"NAMESPACE":           func(c *Config, v string) error { c.Namespace = v; return nil },
	"PROMETHEUS_ENDPOINT": func(c *Config, v string) error { c.Prometheus.Endpoint = v; return nil },
	"PROMETHEUS_USERNAME": func(c *Config, v string) error { c.Prometheus.Username = v; return nil },
	"PROMETHEUS_PASSWORD": func(c *Config, v string) error { c.Prometheus.Password = v; return nil },
	"REDIS_ADDR":          func(c *Config, v string) error { c.Redis.Addr = v; return nil },
	"REDIS_PASSWORD":      func(c *Config, v string) error { c.Redis.Password = v; return nil },
	"REDIS_DB":            func(c *Config, v string) error { return parseInt(&c.Redis.DB)(v) },
	"SLACK_WEBHOOK_URL":   func(c *Config, v string) error { c.Slack.WebhookURL = v; return nil },
	"AMQP_URL":            func(c *Config, v string) error { c.AMQP.URL = v; return nil },
	"AMQP_EXCHANGE":       func(c *Config, v string) error { c.AMQP.Exchange = v; return nil },
	"MODEL_PATH":          func(c *Config, v string) error { c.Model.Path = v; return nil },
	"MODEL_RELOAD_INTERVAL_SECONDS": func(c *Config, v string) error {
		return parseInt(&c.Model.ReloadIntervalSeconds)(v)
	},
}

// applyEnv applies overrides in a stable order so errors are deterministic.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	keys := make([]string, 0, len(envParsers))
	for key := range envParsers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		if err := envParsers[key](c, value); err != nil {
			return fmt.Errorf("invalid value %q for %s%s: %w", value, EnvPrefix, key, err)
		}
		klog.V(4).InfoS("Applied environment override", "key", EnvPrefix+key)
	}
	return nil
}
