package preprocessing

import (
	"fmt"
	"sort"
)

// MissingCode is the code given to a missing or unseen category.
const MissingCode = -1

// LabelEncoder maps category labels to integer codes. Codes follow the
// sorted order of the labels seen by Fit, so the same labels always get
// the same codes.
type LabelEncoder struct {
	ClassToInt map[string]int
	IntToClass map[int]string
	IsFitted   bool
}

func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{
		ClassToInt: make(map[string]int),
		IntToClass: make(map[int]string),
		IsFitted:   false,
	}
}

func (le *LabelEncoder) Fit(labels []string) {
	le.ClassToInt = make(map[string]int)
	le.IntToClass = make(map[int]string)

	uniqueLabels := make(map[string]bool)
	for _, label := range labels {
		uniqueLabels[label] = true
	}

	sorted := make([]string, 0, len(uniqueLabels))
	for label := range uniqueLabels {
		sorted = append(sorted, label)
	}
	sort.Strings(sorted)

	for idx, label := range sorted {
		le.ClassToInt[label] = idx
		le.IntToClass[idx] = label
	}

	le.IsFitted = true
}

// Code returns the code of label, or MissingCode and false if label was
// not seen by Fit.
func (le *LabelEncoder) Code(label string) (int, bool) {
	val, ok := le.ClassToInt[label]
	if !ok {
		return MissingCode, false
	}
	return val, true
}

// InverseTransform maps codes back to labels. MissingCode and codes
// outside the fitted range are errors.
func (le *LabelEncoder) InverseTransform(encoded []int) ([]string, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder must be fitted before inverse transform")
	}

	result := make([]string, len(encoded))
	for i, val := range encoded {
		if label, ok := le.IntToClass[val]; ok {
			result[i] = label
		} else {
			return nil, fmt.Errorf("unknown encoding: %d", val)
		}
	}

	return result, nil
}

func (le *LabelEncoder) Classes() []string {
	classes := make([]string, len(le.IntToClass))
	for idx, label := range le.IntToClass {
		classes[idx] = label
	}
	return classes
}
