package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
log:
  level: debug
data:
  file: data/custom_6.csv
  target: Current_Price
  features: [Year, Pieces, Minifigures, Theme, USD_MSRP]
  categorical: [Theme]
  fill:
    Minifigures: 0
    Pieces: -1
model:
  bags: 30
  seed: 7
  parallel: true
experiment:
  bags:
    start: 1
    stop: 20
    step: 5
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	conf, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	require.Equal(t, "debug", conf.Log.Level)
	require.Equal(t, "Current_Price", conf.Data.Target)
	require.Equal(t, -1.0, conf.Data.Fill["Pieces"])
	require.Equal(t, []string{"Theme"}, conf.Data.Categorical)

	require.Equal(t, "bag", conf.Model.Algorithm)
	require.Equal(t, 30, conf.Model.Bags)
	require.Equal(t, 10, conf.Model.MaxSplitTries)

	mc := conf.Model.ModelConfig()
	require.Equal(t, uint64(7), mc.Seed)
	require.True(t, mc.Parallel)

	require.Equal(t, 5, conf.Experiment.Folds)
	require.True(t, conf.Experiment.Shuffle)
	require.Equal(t, []int{1, 6, 11, 16}, conf.Experiment.Bags.Values())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "model: [1, 2"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "model:\n  algorithm: knn\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "experiment:\n  folds: 1\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "experiment:\n  bags: {start: 5, stop: 5, step: 1}\n"))
	require.Error(t, err)
}

func TestBagRangeDefault(t *testing.T) {
	require.Equal(t, []int{1, 6, 11, 16, 21, 26, 31, 36, 41, 46}, Default().Experiment.Bags.Values())
	require.Nil(t, BagRange{Start: 1, Stop: 10}.Values())
}
