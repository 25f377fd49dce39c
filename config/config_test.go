package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewConfig 默认配置有效
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Recovery.PartitionConfirmCycles)
	assert.Equal(t, 2.0, cfg.Recovery.BackoffMultiplier)
}

func TestRecoveryConfig_Validate(t *testing.T) {
	t.Run("TimeoutMustBeShorterThanInterval", func(t *testing.T) {
		cfg := DefaultRecoveryConfig()
		cfg.HealthCheckTimeout = cfg.HealthCheckInterval
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("ThresholdRange", func(t *testing.T) {
		cfg := DefaultRecoveryConfig()
		cfg.PartitionDetectionThreshold = 1.5
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("BackoffCurve", func(t *testing.T) {
		cfg := DefaultRecoveryConfig()
		cfg.MaxReconnectDelay = Duration(time.Millisecond)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

		cfg = DefaultRecoveryConfig()
		cfg.BackoffMultiplier = 0.5
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})
}

func TestConfig_CrossChecks(t *testing.T) {
	cfg := NewConfig()
	cfg.Node.MaxPeers = 2
	cfg.Recovery.MinHealthyPeers = 3
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = NewConfig()
	cfg.KnownPeers = []KnownPeer{{Addrs: []string{"/ip4/1.1.1.1/tcp/1"}}}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)
}

func TestBootstrapConfig_RelaySeeds(t *testing.T) {
	cfg := DefaultBootstrapConfig()
	cfg.RelaySeeds = []string{"http://relay.example.com"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.RelaySeeds = []string{"wss://relay.example.com/seeds"}
	assert.NoError(t, cfg.Validate())
}

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1m30s","b":250}`), &v))
	assert.Equal(t, 90*time.Second, v.A.Duration())
	assert.Equal(t, 250*time.Millisecond, v.B.Duration())

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
}

func TestFromJSON_KeepsDefaults(t *testing.T) {
	cfg, err := FromJSON([]byte(`{
		"node": {"max_peers": 10},
		"bootstrap": {"nodes": ["seed-1@/ip4/10.0.0.1/tcp/4001"]},
		"recovery": {"min_healthy_peers": 3, "partition_recovery_timeout": 1500}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Node.MaxPeers)
	assert.Equal(t, []string{"seed-1@/ip4/10.0.0.1/tcp/4001"}, cfg.Bootstrap.Nodes)
	assert.Equal(t, 1500*time.Millisecond, cfg.Recovery.PartitionRecoveryTimeout.Duration())
	assert.Equal(t, DefaultRecoveryConfig().HealthCheckInterval, cfg.Recovery.HealthCheckInterval)
	assert.NoError(t, cfg.Validate())

	_, err = FromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshcore.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"recovery":{"health_check_timeout":"1m"}}`), 0o600))

	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestApplyPreset(t *testing.T) {
	for _, name := range []string{"server", "mobile", "test", ""} {
		cfg := NewConfig()
		require.NoError(t, ApplyPreset(cfg, name), name)
		assert.NoError(t, cfg.Validate(), name)
	}
	assert.Error(t, ApplyPreset(NewConfig(), "desktop"))

	cfg := NewConfig()
	require.NoError(t, ApplyPreset(cfg, "test"))
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, TransportMemory, cfg.Transport.Kind)
}

func TestClone(t *testing.T) {
	cfg := NewConfig()
	cfg.Bootstrap.Nodes = []string{"a@b"}
	cp := cfg.Clone()
	cp.Bootstrap.Nodes[0] = "changed"
	assert.Equal(t, "a@b", cfg.Bootstrap.Nodes[0])
}
