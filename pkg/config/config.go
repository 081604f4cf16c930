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

// Package config loads controller configuration from a YAML file, then
// AUTOSERVE_* environment overrides, then validates the result.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/alerting"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/metrics"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/policy"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

type ReplicaBounds struct {
	Min int32 `json:"min" validate:"gte=0"`
	Max int32 `json:"max" validate:"gtefield=Min,gte=1"`
}

type AlertThresholds struct {
	CPUMedium         float64 `json:"cpuMedium" validate:"gte=0,lte=100"`
	CPUCritical       float64 `json:"cpuCritical" validate:"gtefield=CPUMedium,lte=100"`
	MemoryMedium      float64 `json:"memoryMedium" validate:"gte=0,lte=100"`
	MemoryHigh        float64 `json:"memoryHigh" validate:"gtefield=MemoryMedium,lte=100"`
	ErrorRateHigh     float64 `json:"errorRateHigh" validate:"gte=0,lte=1"`
	ErrorRateCritical float64 `json:"errorRateCritical" validate:"gtefield=ErrorRateHigh,lte=1"`
}

type PrometheusConfig struct {
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// StepSeconds is the resolution of range queries.
	StepSeconds int             `json:"stepSeconds" validate:"gte=0"`
	Queries     []metrics.Query `json:"queries,omitempty" validate:"dive"`
}

type RedisConfig struct {
	Addr            string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password        string `json:"password,omitempty"`
	DB              int    `json:"db" validate:"gte=0"`
	DedupTTLSeconds int    `json:"dedupTTLSeconds" validate:"gte=0"`
	HistoryCapacity int    `json:"historyCapacity" validate:"gte=0"`
}

type SlackConfig struct {
	WebhookURL    string  `json:"webhookURL,omitempty" validate:"omitempty,url"`
	RatePerSecond float64 `json:"ratePerSecond" validate:"gte=0"`
	Burst         int     `json:"burst" validate:"gte=0"`
}

type AMQPConfig struct {
	URL      string `json:"url,omitempty" validate:"omitempty,url"`
	Exchange string `json:"exchange,omitempty"`
}

type ModelConfig struct {
	// Path of a linear model file. The built-in model is used when empty.
	Path                  string `json:"path,omitempty"`
	ReloadIntervalSeconds int    `json:"reloadIntervalSeconds" validate:"gte=0"`
}

// Config is the full controller configuration.
type Config struct {
	ConfidenceThreshold   float64       `json:"confidenceThreshold" validate:"gte=0,lte=1"`
	CooldownWindowSeconds int           `json:"cooldownWindowSeconds" validate:"gte=0"`
	ReplicaBounds         ReplicaBounds `json:"replicaBounds"`
	PollIntervalSeconds   int           `json:"pollIntervalSeconds" validate:"gt=0"`
	MonitoredServices     []string      `json:"monitoredServices" validate:"min=1,unique,dive,required"`

	MetricsWindowSeconds int `json:"metricsWindowSeconds" validate:"gt=0"`
	CallTimeoutSeconds   int `json:"callTimeoutSeconds" validate:"gt=0"`
	MaxConcurrency       int `json:"maxConcurrency" validate:"gt=0"`

	// Namespace holds the Deployments backing the monitored services.
	Namespace string `json:"namespace" validate:"required"`
	// Targets maps a service onto a differently named Deployment.
	Targets map[string]string `json:"targets,omitempty"`

	Alerts     AlertThresholds  `json:"alerts"`
	Prometheus PrometheusConfig `json:"prometheus"`
	Redis      RedisConfig      `json:"redis"`
	Slack      SlackConfig      `json:"slack"`
	AMQP       AMQPConfig       `json:"amqp"`
	Model      ModelConfig      `json:"model"`
}

// Default returns the stock configuration.
func Default() *Config {
	th := alerting.DefaultThresholds()
	return &Config{
		ConfidenceThreshold:   0.7,
		CooldownWindowSeconds: 300,
		ReplicaBounds:         ReplicaBounds{Min: 1, Max: 10},
		PollIntervalSeconds:   300,
		MonitoredServices:     []string{"frontend", "backend-api", "background-worker"},
		MetricsWindowSeconds:  300,
		CallTimeoutSeconds:    5,
		MaxConcurrency:        8,
		Namespace:             "default",
		Alerts: AlertThresholds{
			CPUMedium:         th.CPUMedium,
			CPUCritical:       th.CPUCritical,
			MemoryMedium:      th.MemoryMedium,
			MemoryHigh:        th.MemoryHigh,
			ErrorRateHigh:     th.ErrorRateHigh,
			ErrorRateCritical: th.ErrorRateCritical,
		},
		Prometheus: PrometheusConfig{StepSeconds: 30},
		Redis:      RedisConfig{DedupTTLSeconds: 600, HistoryCapacity: 1000},
		Slack:      SlackConfig{RatePerSecond: 1, Burst: 5},
		AMQP:       AMQPConfig{Exchange: "autoserve.events"},
	}
}

// Load builds the configuration. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func (c *Config) PollInterval() time.Duration        { return seconds(c.PollIntervalSeconds) }
func (c *Config) MetricsWindow() time.Duration       { return seconds(c.MetricsWindowSeconds) }
func (c *Config) CallTimeout() time.Duration         { return seconds(c.CallTimeoutSeconds) }
func (c *Config) ModelReloadInterval() time.Duration { return seconds(c.Model.ReloadIntervalSeconds) }
func (c *Config) DedupTTL() time.Duration            { return seconds(c.Redis.DedupTTLSeconds) }
func (c *Config) PrometheusStep() time.Duration      { return seconds(c.Prometheus.StepSeconds) }

// PolicyConfig converts the decision parameters.
func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{
		ConfidenceThreshold: c.ConfidenceThreshold,
		Cooldown:            seconds(c.CooldownWindowSeconds),
		Constraints: types.ScalingConstraints{
			MinReplicas: c.ReplicaBounds.Min,
			MaxReplicas: c.ReplicaBounds.Max,
		},
		CallTimeout: c.CallTimeout(),
	}
}

func (c *Config) AlertThresholds() alerting.Thresholds {
	return alerting.Thresholds{
		CPUMedium:         c.Alerts.CPUMedium,
		CPUCritical:       c.Alerts.CPUCritical,
		MemoryMedium:      c.Alerts.MemoryMedium,
		MemoryHigh:        c.Alerts.MemoryHigh,
		ErrorRateHigh:     c.Alerts.ErrorRateHigh,
		ErrorRateCritical: c.Alerts.ErrorRateCritical,
	}
}
