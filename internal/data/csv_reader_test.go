package data

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"pertforest/internal/preprocessing"
)

const setsCSV = `Year,Pieces,Minifigures,Theme,USD_MSRP,Current_Price
2001,500,2,City,49.99,80.5
2002,,,Technic,99.99,150
2003,250,1,City,19.99,
2004,1200,4,,149.99,300.25
2005,abc-free,0,Star Wars,9.99,12
`

func TestReadDataset(t *testing.T) {
	ds, err := ReadDataset(strings.NewReader(setsCSV), LoadOptions{
		Target:      "Current_Price",
		Features:    []string{"Year", "Pieces", "Minifigures", "Theme", "USD_MSRP"},
		Categorical: []string{"Theme", "Pieces"},
		Fill:        map[string]float64{"Minifigures": 0},
	})
	require.NoError(t, err)

	require.Equal(t, []int{1, 2, 4, 5}, ds.Rows)
	require.Equal(t, 1, ds.Dropped)
	require.Equal(t, []float64{80.5, 150, 300.25, 12}, ds.Y)

	theme := ds.Encoders["Theme"]
	require.Equal(t, []string{"City", "Star Wars", "Technic"}, theme.Classes())

	require.Equal(t, []float64{2001, 2, 2, 0, 49.99}, ds.X[0])
	require.Equal(t, 2.0, ds.X[1][3])
	require.Equal(t, 0.0, ds.X[1][2])
	require.Equal(t, float64(preprocessing.MissingCode), ds.X[1][1])
	require.Equal(t, float64(preprocessing.MissingCode), ds.X[2][3])
	require.Equal(t, 1.0, ds.X[3][3])
}

func TestReadDatasetDefaultsAndFill(t *testing.T) {
	input := "a,b,y\n1,2,3\n,5,6\n7,8,9\n"

	ds, err := ReadDataset(strings.NewReader(input), LoadOptions{Target: "y"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ds.Features)
	require.Equal(t, [][]float64{{1, 2}, {7, 8}}, ds.X)
	require.Equal(t, 1, ds.Dropped)

	ds, err = ReadDataset(strings.NewReader(input), LoadOptions{Target: "y", Fill: map[string]float64{"a": -1}})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{1, 2}, {-1, 5}, {7, 8}}, ds.X)
	require.Equal(t, []float64{3, 6, 9}, ds.Y)
}

func TestReadDatasetWithoutTarget(t *testing.T) {
	enc := preprocessing.NewLabelEncoder()
	enc.Fit([]string{"x", "y"})

	ds, err := ReadDataset(strings.NewReader("k,v\ny,1\nz,2\n"), LoadOptions{
		Features:    []string{"k", "v"},
		Categorical: []string{"k"},
		Encoders:    map[string]*preprocessing.LabelEncoder{"k": enc},
	})
	require.NoError(t, err)
	require.Nil(t, ds.Y)
	require.Equal(t, [][]float64{{1, 1}, {-1, 2}}, ds.X)
	require.Same(t, enc, ds.Encoders["k"])
}

func TestReadDatasetErrors(t *testing.T) {
	_, err := ReadDataset(strings.NewReader("a,y\n"), LoadOptions{Target: "y"})
	require.Error(t, err)

	_, err = ReadDataset(strings.NewReader("a,y\n1,2\n"), LoadOptions{Target: "missing"})
	require.Error(t, err)

	_, err = ReadDataset(strings.NewReader("a,y\nfoo,2\n"), LoadOptions{Target: "y"})
	require.Error(t, err)

	_, err = ReadDataset(strings.NewReader("a,y\n,2\n"), LoadOptions{Target: "y"})
	require.Error(t, err)

	_, err = ReadDataset(strings.NewReader("k,y\na,2\n"), LoadOptions{
		Target:      "y",
		Categorical: []string{"k"},
		Encoders:    map[string]*preprocessing.LabelEncoder{"k": preprocessing.NewLabelEncoder()},
	})
	require.Error(t, err)
}

func TestCSVReaderLoadData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sets.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,y\n1,2\n3,4\n"), 0644))

	ds, err := NewCSVReader(path).LoadData(LoadOptions{Target: "y"})
	require.NoError(t, err)
	require.Equal(t, []float64{2, 4}, ds.Y)

	_, err = NewCSVReader(filepath.Join(t.TempDir(), "nope.csv")).LoadData(LoadOptions{})
	require.Error(t, err)
}

func TestDataValidator(t *testing.T) {
	dv := NewDataValidator()

	require.NoError(t, dv.ValidateDataset([][]float64{{1, 2}, {3, 4}}, []float64{1, 2}))
	require.Error(t, dv.ValidateDataset(nil, nil))
	require.Error(t, dv.ValidateDataset([][]float64{{1}}, []float64{1, 2}))
	require.Error(t, dv.ValidateDataset([][]float64{{}}, []float64{1}))
	require.Error(t, dv.ValidateDataset([][]float64{{1, 2}, {3}}, []float64{1, 2}))
	require.Error(t, dv.ValidateDataset([][]float64{{math.NaN()}}, []float64{1}))
	require.Error(t, dv.ValidateDataset([][]float64{{1}}, []float64{math.Inf(-1)}))

	stats := dv.GetDatasetStats([][]float64{{1, 10}, {3, 20}}, []float64{5, 7})
	require.Equal(t, 2, stats.Samples)
	require.Equal(t, 2, stats.Features)
	require.Equal(t, 6.0, stats.TargetMean)
	require.Equal(t, FeatureStats{Min: 10, Max: 20, Mean: 15}, stats.Columns[1])
}
