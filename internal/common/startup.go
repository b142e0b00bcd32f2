package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/weaveworks/promrus"

	commonconfig "github.com/G-Research/chimp/internal/common/config"
	"github.com/G-Research/chimp/internal/common/logging"
)

// EnvPrefix is the prefix of environment variables that override configuration keys,
// e.g. CHIMP_GRPCPORT=50052.
const EnvPrefix = "CHIMP"

func BindCommandlineArguments() {
	err := viper.BindPFlags(pflag.CommandLine)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

// LoadConfig loads config.yaml from defaultPath, merges each of the overrideConfigs on top and then
// applies environment overrides, before unmarshalling into config.
// Any failure is fatal, as the application cannot run without its configuration.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) *viper.Viper {
	v, err := loadConfig(config, defaultPath, overrideConfigs)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
	return v
}

func loadConfig(config interface{}, defaultPath string, overrideConfigs []string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading base config path=%s: %v", defaultPath, err)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config from %s: %v", overrideConfig, err)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		return nil, err
	}
	return v, nil
}

// ConfigureLogging sets up logrus for a long-running service: full timestamps on stdout and a
// prometheus hook counting log lines by level.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		log.WithError(err).Warn("Failed to register log metrics hook")
		return
	}
	log.AddHook(hook)
}

// ConfigureCommandLineLogging sets up logrus for a CLI: bare messages on stdout.
func ConfigureCommandLineLogging() {
	log.SetFormatter(new(logging.CommandLineFormatter))
	log.SetOutput(os.Stdout)
}

// ServeMetrics exposes the default prometheus registry, along with any extra gatherers, on port.
// The returned function shuts the server down.
func ServeMetrics(port uint16, gatherers ...prometheus.Gatherer) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(gatherers...))
	return ServeHttp(port, mux)
}

// MetricsHandler serves the default prometheus registry merged with gatherers.
func MetricsHandler(gatherers ...prometheus.Gatherer) http.Handler {
	merged := append(prometheus.Gatherers{prometheus.DefaultGatherer}, gatherers...)
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(merged, promhttp.HandlerOpts{}),
	)
}

// ServeHttp serves handler on port in the background. The returned function shuts the server down.
func ServeHttp(port uint16, handler http.Handler) (shutdown func()) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler}

	go func() {
		log.Printf("Listening on port %d", port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// ListenAndServe only returns ErrServerClosed after a clean Shutdown.
			log.WithError(err).Errorf("HTTP server on port %d failed", port)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Printf("Stopping http server listening on %d", port)
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failed to shut down http server")
		}
	}
}
