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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
	assert.Equal(t, []string{"frontend", "backend-api", "background-worker"}, cfg.MonitoredServices)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.CallTimeout())

	pc := cfg.PolicyConfig()
	assert.Equal(t, 300*time.Second, pc.Cooldown)
	assert.Equal(t, int32(1), pc.Constraints.MinReplicas)
	assert.Equal(t, int32(10), pc.Constraints.MaxReplicas)

	th := cfg.AlertThresholds()
	assert.Equal(t, 90.0, th.CPUCritical)
	assert.Equal(t, 0.05, th.ErrorRateHigh)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
confidenceThreshold: 0.8
cooldownWindowSeconds: 120
replicaBounds:
  min: 2
  max: 20
monitoredServices: [api, web]
namespace: prod
targets:
  api: api-deployment
redis:
  addr: localhost:6379
`)
	t.Setenv("AUTOSERVE_MAX_REPLICAS", "15")
	t.Setenv("AUTOSERVE_MONITORED_SERVICES", "api, web, worker")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.ConfidenceThreshold)
	assert.Equal(t, 120, cfg.CooldownWindowSeconds)
	assert.Equal(t, int32(2), cfg.ReplicaBounds.Min)
	assert.Equal(t, int32(15), cfg.ReplicaBounds.Max)
	assert.Equal(t, []string{"api", "web", "worker"}, cfg.MonitoredServices)
	assert.Equal(t, "prod", cfg.Namespace)
	assert.Equal(t, "api-deployment", cfg.Targets["api"])
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	// untouched defaults survive the file layer
	assert.Equal(t, 300, cfg.PollIntervalSeconds)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "threshold above one", file: "confidenceThreshold: 1.5"},
		{name: "max below min", file: "replicaBounds: {min: 5, max: 3}"},
		{name: "no services", file: "monitoredServices: []"},
		{name: "duplicate services", file: "monitoredServices: [api, api]"},
		{name: "unknown field", file: "bogus: true"},
		{name: "zero poll interval", env: map[string]string{"AUTOSERVE_POLL_INTERVAL_SECONDS": "0"}},
		{name: "unparsable env", env: map[string]string{"AUTOSERVE_CONFIDENCE_THRESHOLD": "high"}},
		{name: "bad webhook", env: map[string]string{"AUTOSERVE_SLACK_WEBHOOK_URL": "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
