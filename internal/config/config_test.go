package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "cyclewatch.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath
}

func resetArgs(t *testing.T) {
	t.Helper()

	oldArgs := os.Args
	os.Args = []string{"cyclewatch"}
	t.Cleanup(func() { os.Args = oldArgs })
}

func TestLoad(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
log_level = "debug"
database = "/path/to/cyclewatch.db"
persist_interval = 60

[mqtt]
broker = "tcp://broker.local:1883"
username = "cyclewatch"
base_topic = "energy"

[appliances.dishwasher]
profile = "dishwasher"
power_topic = "zigbee2mqtt/dishwasher_plug/power"
cost_per_kwh = 0.32

[appliances.dryer]
power_topic = "zigbee2mqtt/dryer_plug/power"
rate_topic = "energy/rate"
start_watts = 100.0
stop_watts = 10.0
start_debounce = "10s"
end_debounce = "2m"
service_enabled = true
service_cycle_threshold = 40
`)
	t.Setenv("CYCLEWATCH_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/path/to/cyclewatch.db", cfg.Database)
	assert.Equal(t, 60, cfg.PersistInterval)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, "cyclewatch", cfg.MQTT.Username)
	assert.Equal(t, "energy", cfg.MQTT.BaseTopic)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix, "Expected default discovery prefix")

	require.Len(t, cfg.Appliances, 2)

	dishwasher := cfg.Appliances["dishwasher"]
	assert.Equal(t, "dishwasher", dishwasher.Profile)
	assert.Equal(t, "zigbee2mqtt/dishwasher_plug/power", dishwasher.PowerTopic)
	resolved, err := dishwasher.Resolve()
	require.NoError(t, err)
	require.NotNil(t, resolved.CostPerKWH)
	assert.InDelta(t, 0.32, *resolved.CostPerKWH, 1e-12)

	dryer := cfg.Appliances["dryer"]
	assert.Equal(t, "energy/rate", dryer.RateTopic)
	resolved, err = dryer.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, resolved.StartWatts, 1e-12)
	assert.InDelta(t, 10.0, resolved.StopWatts, 1e-12)
	assert.Equal(t, 10*time.Second, resolved.StartDebounce)
	assert.Equal(t, 2*time.Minute, resolved.EndDebounce)
	assert.True(t, resolved.ServiceEnabled)
	assert.Equal(t, 40, resolved.ServiceCycleThreshold)
}

func TestLoadDefaults(t *testing.T) {
	resetArgs(t)

	// Ensure no config file is used
	t.Setenv("CYCLEWATCH_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultDatabase, cfg.Database)
	assert.Equal(t, config.DefaultPersistInterval, cfg.PersistInterval)
	assert.Equal(t, config.DefaultBroker, cfg.MQTT.Broker)
	assert.Equal(t, "cyclewatch", cfg.MQTT.ClientID)
	assert.Equal(t, "cyclewatch", cfg.MQTT.BaseTopic)
	assert.Empty(t, cfg.Appliances)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, "This is not a valid TOML file\n")
	t.Setenv("CYCLEWATCH_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("CYCLEWATCH_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestApplianceWithoutPowerTopic(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
[appliances.dishwasher]
profile = "dishwasher"
`)
	t.Setenv("CYCLEWATCH_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power_topic")
}

func TestApplianceUnknownProfile(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
[appliances.toaster]
profile = "flux_capacitor"
power_topic = "zigbee2mqtt/toaster/power"
`)
	t.Setenv("CYCLEWATCH_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flux_capacitor")
}

func TestLogLevelFlag(t *testing.T) {
	// Save original args and restore after test
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	t.Setenv("CYCLEWATCH_CONFIG", "")
	os.Args = []string{"cyclewatch", "--log-level", "debug"}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestProfileDefaultsApply(t *testing.T) {
	section := config.Appliance{Profile: "washing machine", PowerTopic: "t"}

	resolved, err := section.Resolve()
	require.NoError(t, err)
	assert.Greater(t, resolved.StartWatts, 0.0)
	assert.Greater(t, resolved.StartDebounce, time.Duration(0))
	assert.Greater(t, resolved.EndDebounce, resolved.StartDebounce,
		"profiles debounce the end longer than the start")
}

func TestOverridesBeatProfile(t *testing.T) {
	watts := 250.0
	section := config.Appliance{
		Profile:    "dishwasher",
		PowerTopic: "t",
		StartWatts: &watts,
	}

	resolved, err := section.Resolve()
	require.NoError(t, err)
	assert.InDelta(t, 250.0, resolved.StartWatts, 1e-12)
}

func TestResolveRejectsInvalidOverride(t *testing.T) {
	watts := -5.0
	section := config.Appliance{PowerTopic: "t", StartWatts: &watts}

	_, err := section.Resolve()
	require.Error(t, err)
}
