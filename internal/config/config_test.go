package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mqtt", cfg.Bus.Kind)
	assert.Equal(t, 1883, cfg.Bus.Port)
	assert.Equal(t, 1, cfg.Bus.QoS)
	assert.Equal(t, "emissionfeed", cfg.Bus.ClientID)
	assert.Equal(t, 5*time.Minute, cfg.Playback.Step)
	assert.Equal(t, time.Second, cfg.Playback.TickInterval)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("BUS_KIND", "kafka")
	t.Setenv("BROKER_QOS", "2")
	t.Setenv("PLAYBACK_STEP", "30s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "kafka", cfg.Bus.Kind)
	assert.Equal(t, 2, cfg.Bus.QoS)
	assert.Equal(t, 30*time.Second, cfg.Playback.Step)
}

func TestLoadRejectsInvalidQoS(t *testing.T) {
	t.Setenv("BROKER_QOS", "3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKER_QOS")
}

func TestLoadRejectsUnknownBusKind(t *testing.T) {
	t.Setenv("BUS_KIND", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUS_KIND")
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	t.Run("zero step", func(t *testing.T) {
		t.Setenv("PLAYBACK_STEP", "0s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PLAYBACK_STEP")
	})

	t.Run("negative tick", func(t *testing.T) {
		t.Setenv("PLAYBACK_TICK", "-1s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PLAYBACK_TICK")
	})
}

func TestWithClientSuffixKeepsBinariesDistinct(t *testing.T) {
	base := BusConfig{ClientID: "emissionfeed"}

	pub := base.WithClientSuffix("publisher")
	sub := base.WithClientSuffix("subscriber")
	view := base.WithClientSuffix("feedview")

	assert.Equal(t, "emissionfeed-publisher", pub.ClientID)
	assert.Equal(t, "emissionfeed-subscriber", sub.ClientID)
	assert.Equal(t, "emissionfeed-feedview", view.ClientID)
	assert.Equal(t, "emissionfeed", base.ClientID)
}
