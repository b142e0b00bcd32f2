package common

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/chimp/internal/chimp/configuration"
	"github.com/G-Research/chimp/internal/common/config"
)

const defaultConfigPath = "../../config/chimp"

func TestLoadConfig_Defaults(t *testing.T) {
	var cfg configuration.ChimpConfig
	_, err := loadConfig(&cfg, defaultConfigPath, nil)
	require.NoError(t, err)

	assert.Equal(t, uint16(50051), cfg.GrpcPort)
	assert.Equal(t, uint16(8080), cfg.HttpPort)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 50*time.Millisecond, cfg.Experiment.MemoryTouchInterval)
	assert.Equal(t, config.Bytes(0), cfg.Experiment.MaxMemory)
	assert.Equal(t, 20*time.Second, cfg.Grpc.KeepaliveParams.Timeout)
}

func TestLoadConfig_OverridesAndEnv(t *testing.T) {
	override := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(override, []byte("grpcPort: 6000\nexperiment:\n  memoryTouchInterval: 10ms\n"), 0o600))
	t.Setenv("CHIMP_EXPERIMENT_MAXMEMORY", "2GiB")

	var cfg configuration.ChimpConfig
	_, err := loadConfig(&cfg, defaultConfigPath, []string{override})
	require.NoError(t, err)

	assert.Equal(t, uint16(6000), cfg.GrpcPort)
	assert.Equal(t, uint16(8080), cfg.HttpPort)
	assert.Equal(t, 10*time.Millisecond, cfg.Experiment.MemoryTouchInterval)
	assert.Equal(t, config.Bytes(2*1024*1024*1024), cfg.Experiment.MaxMemory)
}

func TestLoadConfig_MissingBase(t *testing.T) {
	var cfg configuration.ChimpConfig
	_, err := loadConfig(&cfg, t.TempDir(), nil)
	assert.Error(t, err)
}

func TestMetricsHandler_ServesExtraGatherers(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "agent_test_total", Help: "Test counter."})
	registry.MustRegister(counter)
	counter.Add(3)

	recorder := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "agent_test_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}
