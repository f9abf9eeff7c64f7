package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeTuning(t, `
ticks_per_hour: 60
soil:
  rich_hours: 10
renewal:
  cost_per_cell: 2
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 60, c.TicksPerHour)
	assert.Equal(t, 10, c.Soil.RichHours)
	assert.Equal(t, 2, c.Renewal.CostPerCell)
	// Untouched keys keep defaults.
	assert.Equal(t, 120, c.Soil.WeatheredHours)
	assert.Equal(t, "SoilTilled", c.Soil.BaseVariant)
	assert.Equal(t, 30000, c.Renewal.IntervalTicks)
}

func TestLoadRepoTuning(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadRejectsInvalid(t *testing.T) {
	p := writeTuning(t, `
cycle_every_ticks: 0
soil:
  min_percent: 200
  max_percent: 100
renewal:
  cost_per_cell: 0
`)
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle_every_ticks")
	assert.Contains(t, err.Error(), "min_percent")
	assert.Contains(t, err.Error(), "cost_per_cell")
}

func TestLoadBadYAML(t *testing.T) {
	p := writeTuning(t, "soil: [unclosed")
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
