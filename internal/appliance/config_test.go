package appliance_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/cyclewatch/internal/appliance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	negative := -0.5

	tests := []struct {
		name    string
		mutate  func(*appliance.Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*appliance.Config) {}},
		{name: "negative start watts", mutate: func(c *appliance.Config) { c.StartWatts = -1 }, wantErr: true},
		{name: "negative stop watts", mutate: func(c *appliance.Config) { c.StopWatts = -1 }, wantErr: true},
		{name: "negative dead zone", mutate: func(c *appliance.Config) { c.DeadZoneWatts = -1 }, wantErr: true},
		{name: "negative debounce", mutate: func(c *appliance.Config) { c.StartDebounce = -time.Second }, wantErr: true},
		{name: "zero stale after", mutate: func(c *appliance.Config) { c.StaleAfter = 0 }, wantErr: true},
		{name: "negative rate", mutate: func(c *appliance.Config) { c.CostPerKWH = &negative }, wantErr: true},
		{
			name: "service enabled without budget",
			mutate: func(c *appliance.Config) {
				c.ServiceEnabled = true
				c.ServiceCycleThreshold = 0
			},
			wantErr: true,
		},
		{
			name: "zero debounce is allowed",
			mutate: func(c *appliance.Config) {
				c.StartDebounce = 0
				c.EndDebounce = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := appliance.DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfileLookup(t *testing.T) {
	cfg, ok := appliance.Profile("dishwasher")
	require.True(t, ok)
	assert.InDelta(t, 1200, cfg.StartWatts, 1e-12)
	assert.Equal(t, appliance.DefaultStartDebounce, cfg.StartDebounce)
	assert.Equal(t, appliance.DefaultEndDebounce, cfg.EndDebounce)
	assert.NoError(t, cfg.Validate(), "every profile must validate")

	_, ok = appliance.Profile("flux capacitor")
	assert.False(t, ok)
}

func TestAllProfilesValidate(t *testing.T) {
	names := appliance.ProfileNames()
	require.NotEmpty(t, names)

	for _, name := range names {
		cfg, ok := appliance.Profile(name)
		require.True(t, ok, name)
		assert.NoError(t, cfg.Validate(), name)
		assert.Greater(t, cfg.StartWatts, cfg.StopWatts, "%s: start must exceed stop", name)
	}
}
