package persistence

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"pertforest/internal/models"
	"pertforest/internal/preprocessing"
)

func init() {
	gob.Register(&models.RandomSplitTree{})
	gob.Register(&models.BaggedEnsemble{})
}

// ModelBundle is everything needed to predict a new CSV: the trained model
// plus the column layout and category encoders it was trained with.
type ModelBundle struct {
	Model    models.Regressor
	Features []string
	Target   string
	Encoders map[string]*preprocessing.LabelEncoder

	// Categorical and Fill repeat the load options used for training.
	Categorical []string
	Fill        map[string]float64

	Metadata  BundleMetadata
	CreatedAt time.Time
}

type BundleMetadata struct {
	ModelName    string
	Dataset      string
	Samples      int
	RMSE         float64
	MAE          float64
	R2           float64
	Correlation  float64
	CVRMSE       float64
	TrainingTime time.Duration
	Parameters   map[string]any
}

func NewModelBundle(model models.Regressor) *ModelBundle {
	return &ModelBundle{
		Model:     model,
		CreatedAt: time.Now(),
		Metadata: BundleMetadata{
			ModelName:  model.GetName(),
			Parameters: model.GetParams(),
		},
	}
}

func (mb *ModelBundle) Save(filename string) error {
	if mb.Model == nil || !mb.Model.IsFitted() {
		return fmt.Errorf("refusing to save: %w", models.ErrNotFitted)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(mb); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	return nil
}

func LoadModelBundle(filename string) (*ModelBundle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var bundle ModelBundle
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}

	if bundle.Model == nil {
		return nil, fmt.Errorf("bundle %s has no model", filename)
	}

	return &bundle, nil
}

func (mb *ModelBundle) SaveMetadata(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintf(file, "Model: %s\n", mb.Metadata.ModelName)
	fmt.Fprintf(file, "Dataset: %s\n", mb.Metadata.Dataset)
	fmt.Fprintf(file, "Created: %s\n", mb.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(file, "Samples: %d\n", mb.Metadata.Samples)
	fmt.Fprintf(file, "RMSE: %.4f\n", mb.Metadata.RMSE)
	fmt.Fprintf(file, "MAE: %.4f\n", mb.Metadata.MAE)
	fmt.Fprintf(file, "R2: %.4f\n", mb.Metadata.R2)
	fmt.Fprintf(file, "Correlation: %.4f\n", mb.Metadata.Correlation)
	fmt.Fprintf(file, "CV RMSE: %.4f\n", mb.Metadata.CVRMSE)
	fmt.Fprintf(file, "Training Time: %v\n", mb.Metadata.TrainingTime)

	return nil
}
