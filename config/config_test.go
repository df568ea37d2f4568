package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sealbid-network/sealbid-daemon/config"
)

func TestDefaults(t *testing.T) {
	require.Equal(t, 9000, config.GetInt(config.OperatorListeningPortKey))
	require.Equal(t, "http://localhost:7474", config.GetString(config.SubstrateEndpointKey))
	require.Equal(t, "sealed-bid-auction", config.GetString(config.EngineProgramKey))
	require.Equal(t, 0, config.GetInt(config.AttestQuorumKey))
	require.False(t, config.GetBool(config.EnableProfilerKey))
	require.NotEmpty(t, config.GetDatadir())
}

func TestDurationGetters(t *testing.T) {
	require.Equal(t, 60*time.Second, config.GetSeconds(config.AssignWindowKey))
	require.Equal(t, 300*time.Second, config.GetSeconds(config.ComputeWindowKey))
	require.Equal(t, 5000*time.Millisecond, config.GetMillis(config.DHTPollIntervalKey))
	require.Equal(t, 15000*time.Millisecond, config.GetMillis(config.SubstrateRequestTimeoutKey))
}

func TestSetOverridesDefault(t *testing.T) {
	require.True(t, config.IsSet(config.InboxSizeKey))

	config.Set(config.InboxSizeKey, 128)
	defer config.Set(config.InboxSizeKey, 64)

	require.Equal(t, 128, config.GetInt(config.InboxSizeKey))
}
