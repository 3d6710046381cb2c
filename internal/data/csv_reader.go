package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pertforest/internal/preprocessing"
)

var logger = logrus.WithField("module", "data")

// LoadOptions selects and cleans the columns of a CSV file.
type LoadOptions struct {
	// Target is the column to predict. Empty when loading rows for
	// prediction only.
	Target string
	// Features defaults to every column except Target.
	Features []string
	// Categorical columns are encoded to sorted category codes.
	Categorical []string
	// Fill replaces missing numeric cells of a column with a constant.
	Fill map[string]float64
	// Encoders are reused instead of fitted when set.
	Encoders map[string]*preprocessing.LabelEncoder
}

type Dataset struct {
	X        [][]float64
	Y        []float64
	Features []string
	Target   string
	Encoders map[string]*preprocessing.LabelEncoder
	// Rows holds the 1-based data row number of every kept sample.
	Rows    []int
	Dropped int
}

type CSVReader struct {
	filename string
}

func NewCSVReader(filename string) *CSVReader {
	return &CSVReader{filename: filename}
}

func (cr *CSVReader) LoadData(opts LoadOptions) (*Dataset, error) {
	file, err := os.Open(cr.filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ds, err := ReadDataset(file, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cr.filename, err)
	}
	return ds, nil
}

// ReadDataset parses a CSV stream with a header row. Rows that still have
// a missing numeric value after Fill are dropped; missing or unseen
// categories get preprocessing.MissingCode.
func ReadDataset(r io.Reader, opts LoadOptions) (*Dataset, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("insufficient data in file")
	}

	headers := records[0]
	rows := records[1:]

	columns := make(map[string]int, len(headers))
	for i, h := range headers {
		columns[strings.TrimSpace(h)] = i
	}

	features := opts.Features
	if len(features) == 0 {
		for _, h := range headers {
			if h = strings.TrimSpace(h); h != opts.Target {
				features = append(features, h)
			}
		}
	}

	for _, name := range append(append([]string{}, features...), opts.Target) {
		if name == "" {
			continue
		}
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
	}

	categorical := make(map[string]bool, len(opts.Categorical))
	for _, name := range opts.Categorical {
		categorical[name] = true
	}

	encoders, err := fitEncoders(rows, columns, features, categorical, opts.Encoders)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Features: features,
		Target:   opts.Target,
		Encoders: encoders,
	}

	unseen := 0
	for i, record := range rows {
		sample := make([]float64, len(features))
		complete := true

		for j, name := range features {
			cell := cellAt(record, columns[name])

			if categorical[name] {
				if isMissing(cell) {
					sample[j] = preprocessing.MissingCode
					continue
				}
				code, ok := encoders[name].Code(cell)
				if !ok {
					unseen++
				}
				sample[j] = float64(code)
				continue
			}

			v, ok, err := parseCell(cell, name, opts.Fill)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			if !ok {
				complete = false
				break
			}
			sample[j] = v
		}

		var target float64
		if complete && opts.Target != "" {
			v, ok, err := parseCell(cellAt(record, columns[opts.Target]), opts.Target, opts.Fill)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			complete = ok
			target = v
		}

		if !complete {
			ds.Dropped++
			continue
		}

		ds.X = append(ds.X, sample)
		ds.Rows = append(ds.Rows, i+1)
		if opts.Target != "" {
			ds.Y = append(ds.Y, target)
		}
	}

	if len(ds.X) == 0 {
		return nil, fmt.Errorf("no complete rows in file (%d dropped)", ds.Dropped)
	}

	logger.WithFields(logrus.Fields{
		"samples":  len(ds.X),
		"features": len(features),
		"dropped":  ds.Dropped,
		"unseen":   unseen,
	}).Debug("dataset loaded")

	return ds, nil
}

func fitEncoders(rows [][]string, columns map[string]int, features []string, categorical map[string]bool, fitted map[string]*preprocessing.LabelEncoder) (map[string]*preprocessing.LabelEncoder, error) {
	encoders := make(map[string]*preprocessing.LabelEncoder)

	for _, name := range features {
		if !categorical[name] {
			continue
		}

		if enc, ok := fitted[name]; ok {
			if !enc.IsFitted {
				return nil, fmt.Errorf("encoder for %q is not fitted", name)
			}
			encoders[name] = enc
			continue
		}

		var labels []string
		for _, record := range rows {
			if cell := cellAt(record, columns[name]); !isMissing(cell) {
				labels = append(labels, cell)
			}
		}

		enc := preprocessing.NewLabelEncoder()
		enc.Fit(labels)
		encoders[name] = enc
	}

	return encoders, nil
}

func cellAt(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "nan", "na", "n/a", "null", "none":
		return true
	}
	return false
}

// parseCell returns the numeric value of cell, falling back to the
// column's fill value. ok is false when the cell is missing and unfilled.
func parseCell(cell, column string, fill map[string]float64) (float64, bool, error) {
	if isMissing(cell) {
		v, ok := fill[column]
		return v, ok, nil
	}

	d, err := decimal.NewFromString(cell)
	if err != nil {
		return 0, false, fmt.Errorf("invalid numeric value in column %s: %q", column, cell)
	}

	v, _ := d.Float64()
	return v, true, nil
}
