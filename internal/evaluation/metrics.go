package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type RegressionMetrics struct {
	MSE         float64 `json:"mse"`
	RMSE        float64 `json:"rmse"`
	MAE         float64 `json:"mae"`
	R2          float64 `json:"r2"`
	Correlation float64 `json:"correlation"`
	NumSamples  int     `json:"num_samples"`
}

// CalculateMetrics compares predictions against the true targets. A
// constant series has no defined correlation; it is reported as 0.
func CalculateMetrics(yTrue, yPred []float64) (*RegressionMetrics, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("yTrue and yPred have different lengths: %d vs %d", len(yTrue), len(yPred))
	}

	if len(yTrue) == 0 {
		return nil, fmt.Errorf("cannot evaluate empty predictions")
	}

	residuals := make([]float64, len(yTrue))
	floats.SubTo(residuals, yPred, yTrue)

	n := float64(len(yTrue))
	sse := floats.Dot(residuals, residuals)
	mse := sse / n

	absResiduals := make([]float64, len(residuals))
	for i, r := range residuals {
		absResiduals[i] = math.Abs(r)
	}

	mean := stat.Mean(yTrue, nil)
	sst := 0.0
	for _, v := range yTrue {
		sst += (v - mean) * (v - mean)
	}

	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}

	return &RegressionMetrics{
		MSE:         mse,
		RMSE:        math.Sqrt(mse),
		MAE:         floats.Sum(absResiduals) / n,
		R2:          r2,
		Correlation: Correlation(yTrue, yPred),
		NumSamples:  len(yTrue),
	}, nil
}

// RMSE returns the root mean squared error of yPred against yTrue.
func RMSE(yTrue, yPred []float64) (float64, error) {
	m, err := CalculateMetrics(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return m.RMSE, nil
}

// Correlation is the Pearson correlation coefficient, or 0 when either
// series is constant.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return safeValue(stat.Correlation(x, y, nil))
}

func safeValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}

func (m *RegressionMetrics) FormatMetrics() string {
	result := fmt.Sprintf("RMSE: %.4f\n", m.RMSE)
	result += fmt.Sprintf("MSE: %.4f\n", m.MSE)
	result += fmt.Sprintf("MAE: %.4f\n", m.MAE)
	result += fmt.Sprintf("R2: %.4f\n", m.R2)
	result += fmt.Sprintf("Correlation: %.4f\n", m.Correlation)
	return result
}
