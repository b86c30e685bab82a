package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresDataDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_ConstructsAllCollaborators(t *testing.T) {
	o, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer o.Close()

	assert.NotNil(t, o.Store)
	assert.NotNil(t, o.Metrics)
	assert.NotNil(t, o.Runner)
	assert.NotNil(t, o.Precheck)
	assert.NotNil(t, o.Driver)
	assert.NotNil(t, o.Deployer)
	assert.NotNil(t, o.Engine)
	assert.Nil(t, o.Bus, "event bus should stay nil when EnableEventBus is false")
}

func TestNew_EnableEventBusStartsBus(t *testing.T) {
	o, err := New(Config{DataDir: t.TempDir(), EnableEventBus: true})
	require.NoError(t, err)
	defer o.Close()

	assert.NotNil(t, o.Bus)
}

func TestNewMetricsCollector_ReturnsNonNilCollector(t *testing.T) {
	o, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	defer o.Close()

	collector := o.NewMetricsCollector()
	assert.NotNil(t, collector)
}

func TestOrchestrator_Close_SucceedsOnFreshInstance(t *testing.T) {
	o, err := New(Config{DataDir: t.TempDir()})
	require.NoError(t, err)

	assert.NoError(t, o.Close())
}
