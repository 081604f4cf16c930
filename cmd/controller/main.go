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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/autoserve/autoserve/pkg/config"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/alerting"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/history"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/metrics"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/monitor"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/notifier"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/orchestrator"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/policy"
	"github.com/autoserve/autoserve/pkg/controller/autoscaler/predictor"
	"github.com/autoserve/autoserve/pkg/server"
	"github.com/autoserve/autoserve/pkg/utils"
)

const (
	defaultSimulatedReplicas = 1
	defaultShutdownTimeout   = 30 * time.Second
)

var (
	configPath string
	httpAddr   string
	kubeConfig string
	standalone bool
)

func main() {
	flag.StringVar(&configPath, "config", utils.LoadEnv("AUTOSERVE_CONFIG", ""),
		"Path to the controller config file. Defaults and AUTOSERVE_* env vars are used when empty.")
	flag.StringVar(&httpAddr, "http-bind-address", utils.LoadEnv("AUTOSERVE_HTTP_BIND_ADDRESS", ":8090"),
		"The address the HTTP API and metrics endpoint bind to.")
	flag.StringVar(&kubeConfig, "kubeconfig", "", "Path to a kubeconfig. In-cluster configuration is used when empty.")
	flag.BoolVar(&standalone, "standalone", utils.LoadEnvBool("AUTOSERVE_STANDALONE", false),
		"Run without Kubernetes against a simulated orchestrator.")
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		klog.Fatalf("Failed to load config: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				klog.Warningf("Error closing Redis client: %v", err)
			}
		}()
	}

	source, samples := buildSource(cfg)
	orch := buildOrchestrator(cfg)
	models := buildPredictor(cfg)

	notify, closeNotifier := buildNotifier(cfg, redisClient)
	defer closeNotifier()

	var store history.Store = history.NewMemoryStore(cfg.Redis.HistoryCapacity)
	if redisClient != nil {
		store = history.NewRedisStore(redisClient, "", cfg.Redis.HistoryCapacity)
	}

	loop, err := autoscaler.NewScalingLoop(autoscaler.Options{
		Services:            cfg.MonitoredServices,
		PollInterval:        cfg.PollInterval(),
		Window:              cfg.MetricsWindow(),
		MaxConcurrency:      cfg.MaxConcurrency,
		CallTimeout:         cfg.CallTimeout(),
		ModelReloadInterval: cfg.ModelReloadInterval(),
	}, autoscaler.Components{
		Source:       source,
		Evaluator:    alerting.NewEvaluator(cfg.AlertThresholds()),
		Policy:       policy.New(cfg.PolicyConfig(), models, orch),
		Orchestrator: orch,
		Notifier:     notify,
		History:      store,
		Monitor:      monitor.New(),
		Reloader:     models,
	})
	if err != nil {
		klog.Fatalf("Failed to create scaling loop: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := server.NewHTTPServer(httpAddr, loop, models, samples)
	klog.InfoS("Starting scaling loop", "services", cfg.MonitoredServices, "orchestrator", orch.Kind(),
		"pollInterval", cfg.PollInterval(), "confidenceThreshold", cfg.ConfidenceThreshold)
	run(ctx, loop, httpServer, utils.LoadEnvDuration("AUTOSERVE_SHUTDOWN_TIMEOUT", defaultShutdownTimeout))
	klog.Info("Controller stopped")
}

type scalingLoop interface {
	Start(ctx context.Context) error
	WaitForBackground()
}

type apiServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// run serves the API and the scaling loop until ctx is done. The API stops
// accepting requests as soon as ctx is done, while the loop drains, and the
// notifications started by either are awaited before returning.
func run(ctx context.Context, loop scalingLoop, srv apiServer, shutdownTimeout time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		klog.InfoS("Starting HTTP server", "address", httpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Fatalf("HTTP server failed: %v", err)
		}
	}()

	apiStopped := make(chan struct{})
	go func() {
		defer close(apiStopped)
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.ErrorS(err, "Failed to shut down HTTP server")
		}
	}()

	if err := loop.Start(ctx); err != nil {
		klog.ErrorS(err, "Scaling loop exited")
	}
	cancel()
	<-apiStopped
	loop.WaitForBackground()
}

// buildSource pulls from Prometheus when an endpoint is configured. Otherwise
// samples are pushed through the HTTP API into an in-memory source.
func buildSource(cfg *config.Config) (metrics.Source, *metrics.MemorySource) {
	if cfg.Prometheus.Endpoint == "" {
		klog.Info("No prometheus endpoint configured, accepting pushed samples")
		mem := metrics.NewMemorySource(2 * cfg.MetricsWindow())
		return mem, mem
	}
	promAPI, err := metrics.InitializePrometheusAPI(cfg.Prometheus.Endpoint, cfg.Prometheus.Username, cfg.Prometheus.Password)
	if err != nil {
		klog.Fatalf("Error initializing prometheus api: %v", err)
	}
	klog.InfoS("Using prometheus metrics source", "endpoint", cfg.Prometheus.Endpoint)
	return metrics.NewPrometheusSource(promAPI, cfg.Namespace, cfg.Prometheus.Queries, cfg.PrometheusStep()), nil
}

func buildOrchestrator(cfg *config.Config) orchestrator.Orchestrator {
	if standalone {
		klog.Info("Running in standalone mode")
		return orchestrator.NewSimulated(int32(utils.LoadEnvInt("AUTOSERVE_SIMULATED_REPLICAS", defaultSimulatedReplicas)))
	}

	var restConfig *rest.Config
	var err error
	if kubeConfig == "" {
		klog.Info("using in-cluster configuration")
		restConfig, err = rest.InClusterConfig()
	} else {
		klog.Infof("using configuration from '%s'", kubeConfig)
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeConfig)
	}
	if err != nil {
		klog.Fatalf("Error building kubeconfig: %v", err)
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		klog.Fatalf("Error building scheme: %v", err)
	}
	k8sClient, err := client.New(restConfig, client.Options{Scheme: scheme})
	if err != nil {
		klog.Fatalf("Error creating kubernetes client: %v", err)
	}
	return orchestrator.NewDeploymentScaler(k8sClient, cfg.Namespace, cfg.Targets)
}

func buildPredictor(cfg *config.Config) *predictor.ModelPredictor {
	if cfg.Model.Path == "" {
		return predictor.NewModelPredictor(predictor.DefaultLinearModel(), nil)
	}
	loader := predictor.FileLoader(cfg.Model.Path)
	model, err := loader()
	if err != nil {
		// Start without a model: decisions report no prediction until a reload succeeds.
		klog.ErrorS(err, "Failed to load model, predictions unavailable", "path", cfg.Model.Path)
		return predictor.NewModelPredictor(nil, loader)
	}
	return predictor.NewModelPredictor(model, loader)
}

func buildNotifier(cfg *config.Config, redisClient *redis.Client) (notifier.Notifier, func()) {
	sinks := notifier.Multi{notifier.Log{}}
	closeFn := func() {}

	if cfg.Slack.WebhookURL != "" {
		sinks = append(sinks, notifier.NewSlack(cfg.Slack.WebhookURL, cfg.Slack.RatePerSecond, cfg.Slack.Burst))
	}
	if cfg.AMQP.URL != "" {
		publisher, closeConn, err := notifier.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			klog.ErrorS(err, "Failed to connect to AMQP broker, events will not be published")
		} else {
			sinks = append(sinks, publisher)
			closeFn = func() {
				if err := closeConn(); err != nil {
					klog.Warningf("Error closing AMQP connection: %v", err)
				}
			}
		}
	}

	var n notifier.Notifier = sinks
	if redisClient != nil && cfg.Redis.DedupTTLSeconds > 0 {
		n = notifier.NewDeduplicator(n, redisClient, cfg.DedupTTL())
	}
	return n, closeFn
}
