package app

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ogurasousui/checkin-ledger/internal/platform/config"
)

func testConfig() *config.Config {
	energy := 40
	return &config.Config{
		SystemActor:  config.SystemActorConfig{Email: "system@checkin.local", Name: "System"},
		Finalization: config.FinalizationConfig{DefaultEnergyPercentage: &energy},
	}
}

func TestBuild_WiresEveryComponent(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	a, err := build(nil, testConfig(), logger, nil)
	require.NoError(t, err)

	require.NotNil(t, a.Ledger)
	require.NotNil(t, a.CheckIns)
	require.NotNil(t, a.Snapshots)
	require.NotNil(t, a.Builder)
	require.NotNil(t, a.Bootstrapper)
	require.NotNil(t, a.Changes)
	require.NotNil(t, a.Executor)
	require.NotNil(t, a.Coordinator)
	require.NotNil(t, a.Management)
	require.NotNil(t, a.Teammates)
	require.NotNil(t, a.Catalog)
	require.NotNil(t, a.Principals)
	require.NotNil(t, a.Authz)
	require.NotNil(t, a.Handler)

	a.Close()
}

func TestBuild_RejectsInvalidPolicy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Authz.Policy = []string{"p, stranger, official"}

	logger, _ := test.NewNullLogger()
	_, err := build(nil, cfg, logger, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "authz")
}
