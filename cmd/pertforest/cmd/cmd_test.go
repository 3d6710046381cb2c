package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, name string, rows int, withTarget bool) string {
	var b strings.Builder
	if withTarget {
		b.WriteString("Year,Pieces,Theme,Price\n")
	} else {
		b.WriteString("Year,Pieces,Theme\n")
	}
	themes := []string{"City", "Technic", "Creator"}
	for i := 0; i < rows; i++ {
		pieces := 50 + (i*53)%700
		fmt.Fprintf(&b, "%d,%d,%s", 2005+i%15, pieces, themes[i%3])
		if withTarget {
			fmt.Fprintf(&b, ",%.2f", float64(pieces)/8+float64(i%3)*4)
		}
		b.WriteString("\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func execute(args ...string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func readRecords(t *testing.T, path string) [][]string {
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return records
}

func TestTrainThenPredict(t *testing.T) {
	dir := t.TempDir()
	train := writeCSV(t, dir, "sets.csv", 60, true)
	modelDir := filepath.Join(dir, "models")

	require.NoError(t, execute("train",
		"--data", train,
		"--target", "Price",
		"--categorical", "Theme",
		"--bags", "4",
		"--seed", "12",
		"--cv", "3",
		"--output", modelDir,
	))

	saved, err := filepath.Glob(filepath.Join(modelDir, "bag_sets_*.model"))
	require.NoError(t, err)
	require.Len(t, saved, 1)

	meta, err := filepath.Glob(filepath.Join(modelDir, "bag_sets_*.txt"))
	require.NoError(t, err)
	require.Len(t, meta, 1)

	input := writeCSV(t, dir, "new.csv", 7, false)
	out := filepath.Join(dir, "out", "predictions.csv")
	require.NoError(t, execute("predict", "--model", saved[0], "--data", input, "--output", out))

	records := readRecords(t, out)
	require.Len(t, records, 8)
	require.Equal(t, []string{"row", "Price"}, records[0])
	require.Equal(t, "1", records[1][0])
}

func TestTrainWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	train := writeCSV(t, dir, "sets.csv", 30, true)

	conf := fmt.Sprintf(`
data:
  file: %s
  target: Price
  categorical: [Theme]
model:
  algorithm: pert
  seed: 4
`, train)
	confPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0644))

	modelDir := filepath.Join(dir, "models")
	require.NoError(t, execute("train", "--config", confPath, "--output", modelDir))

	saved, err := filepath.Glob(filepath.Join(modelDir, "pert_sets_*.model"))
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

func TestExperimentCommand(t *testing.T) {
	dir := t.TempDir()
	train := writeCSV(t, dir, "sets.csv", 36, true)

	conf := `
data:
  categorical: [Theme]
model:
  max_workers: 2
experiment:
  bags: {start: 1, stop: 4, step: 2}
  folds: 3
`
	confPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(confPath, []byte(conf), 0644))

	outDir := filepath.Join(dir, "results")
	require.NoError(t, execute("experiment",
		"--config", confPath,
		"--data", train,
		"--target", "Price",
		"--output", outDir,
		"--seed", "3",
	))

	files, err := filepath.Glob(filepath.Join(outDir, "sets_bagging_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	records := readRecords(t, files[0])
	require.Len(t, records, 3)
	require.Equal(t, "1", records[1][1])
	require.Equal(t, "3", records[2][1])
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, execute("train", "--output", dir))
	require.Error(t, execute("train", "--config", filepath.Join(dir, "missing.yaml")))
	require.Error(t, execute("predict", "--model", filepath.Join(dir, "missing.model"), "--data", "x.csv"))
	require.Error(t, execute("predict"))
	require.Error(t, execute("experiment"))
}

func TestImportanceCommand(t *testing.T) {
	dir := t.TempDir()
	train := writeCSV(t, dir, "sets.csv", 60, true)
	out := filepath.Join(dir, "importance.csv")

	require.NoError(t, execute("importance",
		"--data", train,
		"--target", "Price",
		"--categorical", "Theme",
		"--bags", "3",
		"--seed", "5",
		"--output", out,
	))

	records := readRecords(t, out)
	require.Len(t, records, 5)
	require.Equal(t, "Feature", records[0][0])
	require.Equal(t, []string{"Year", "Pieces", "Theme", "(baseline)"},
		[]string{records[1][0], records[2][0], records[3][0], records[4][0]})
	require.Equal(t, "0.000000", records[4][4])
}
