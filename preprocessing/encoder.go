package preprocessing

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/core/model"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// FrequencyEncoder replaces each categorical value by the number of times it
// occurred in the data the encoder was fitted on. Values never seen during
// Fit encode to 0.
type FrequencyEncoder struct {
	model.BaseEstimator

	// Counts holds, per input column, the occurrence count of each category.
	Counts []map[string]int

	// NFeatures is the number of input columns.
	NFeatures int
}

// NewFrequencyEncoder returns an unfitted FrequencyEncoder.
//
//	encoder := preprocessing.NewFrequencyEncoder()
//	err := encoder.Fit([][]string{{"OH"}, {"KS"}, {"OH"}})
//	encoded, err := encoder.Transform([][]string{{"OH"}, {"NJ"}}) // [[2], [0]]
func NewFrequencyEncoder() *FrequencyEncoder {
	return &FrequencyEncoder{BaseEstimator: model.BaseEstimator{ModelType: "FrequencyEncoder"}}
}

// Fit counts category occurrences per column. data is n_samples × n_features.
func (e *FrequencyEncoder) Fit(data [][]string) (err error) {
	defer scigoErrors.Recover(&err, "FrequencyEncoder.Fit")
	if len(data) == 0 || len(data[0]) == 0 {
		return scigoErrors.NewModelError("FrequencyEncoder.Fit", "empty data", scigoErrors.ErrEmptyData)
	}

	nFeatures := len(data[0])
	counts := make([]map[string]int, nFeatures)
	for j := range counts {
		counts[j] = make(map[string]int)
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return scigoErrors.NewDimensionError(fmt.Sprintf("FrequencyEncoder.Fit row %d", i), nFeatures, len(row), 1)
		}
		for j, v := range row {
			counts[j][v]++
		}
	}

	e.Counts = counts
	e.NFeatures = nFeatures
	e.SetFitted()
	return nil
}

// Transform maps every value to its fitted count.
func (e *FrequencyEncoder) Transform(data [][]string) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "FrequencyEncoder.Transform")
	if !e.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("FrequencyEncoder", "Transform")
	}
	if len(data) == 0 {
		return &mat.Dense{}, nil
	}

	result := mat.NewDense(len(data), e.NFeatures, nil)
	for i, row := range data {
		if len(row) != e.NFeatures {
			return nil, scigoErrors.NewDimensionError("FrequencyEncoder.Transform", e.NFeatures, len(row), 1)
		}
		for j, v := range row {
			result.Set(i, j, float64(e.Counts[j][v]))
		}
	}
	return result, nil
}

// FitTransform fits on data and encodes it.
func (e *FrequencyEncoder) FitTransform(data [][]string) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "FrequencyEncoder.FitTransform")
	if err := e.Fit(data); err != nil {
		return nil, err
	}
	return e.Transform(data)
}

// Frequency returns the fitted count of value in column j, 0 if unseen.
func (e *FrequencyEncoder) Frequency(j int, value string) float64 {
	if !e.IsFitted() || j < 0 || j >= e.NFeatures {
		return 0
	}
	return float64(e.Counts[j][value])
}

// BinaryEncoder maps a two-valued categorical column to 1 (Positive) and 0
// (Negative). Any other value is an UnmappedCategoryError; nothing is ever
// silently encoded as missing.
type BinaryEncoder struct {
	model.BaseEstimator

	Positive string
	Negative string

	// Columns names the input columns for error reporting.
	Columns []string

	NFeatures int
}

// NewBinaryEncoder returns an encoder mapping positive to 1 and negative to 0.
// columns names the input columns and fixes their number.
func NewBinaryEncoder(positive, negative string, columns ...string) *BinaryEncoder {
	return &BinaryEncoder{
		BaseEstimator: model.BaseEstimator{ModelType: "BinaryEncoder"},
		Positive:      positive,
		Negative:      negative,
		Columns:       columns,
	}
}

// Fit checks that every value is mappable and records the column count.
func (e *BinaryEncoder) Fit(data [][]string) (err error) {
	defer scigoErrors.Recover(&err, "BinaryEncoder.Fit")
	if len(data) == 0 || len(data[0]) == 0 {
		return scigoErrors.NewModelError("BinaryEncoder.Fit", "empty data", scigoErrors.ErrEmptyData)
	}
	if len(e.Columns) > 0 && len(data[0]) != len(e.Columns) {
		return scigoErrors.NewDimensionError("BinaryEncoder.Fit", len(e.Columns), len(data[0]), 1)
	}
	e.NFeatures = len(data[0])
	e.SetFitted()
	if _, err := e.Transform(data); err != nil {
		e.Reset()
		return err
	}
	return nil
}

// Transform encodes data, failing on the first unmapped value.
func (e *BinaryEncoder) Transform(data [][]string) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "BinaryEncoder.Transform")
	if !e.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("BinaryEncoder", "Transform")
	}
	if len(data) == 0 {
		return &mat.Dense{}, nil
	}

	result := mat.NewDense(len(data), e.NFeatures, nil)
	for i, row := range data {
		if len(row) != e.NFeatures {
			return nil, scigoErrors.NewDimensionError("BinaryEncoder.Transform", e.NFeatures, len(row), 1)
		}
		for j, v := range row {
			code, err := e.Encode(j, i, v)
			if err != nil {
				return nil, err
			}
			result.Set(i, j, code)
		}
	}
	return result, nil
}

// FitTransform fits on data and encodes it.
func (e *BinaryEncoder) FitTransform(data [][]string) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "BinaryEncoder.FitTransform")
	if err := e.Fit(data); err != nil {
		return nil, err
	}
	return e.Transform(data)
}

// Encode maps a single value of column j found at row.
func (e *BinaryEncoder) Encode(j, row int, value string) (float64, error) {
	switch strings.TrimSpace(value) {
	case e.Positive:
		return 1, nil
	case e.Negative:
		return 0, nil
	}
	return 0, scigoErrors.NewUnmappedCategoryError(e.columnName(j), row, value)
}

func (e *BinaryEncoder) columnName(j int) string {
	if j >= 0 && j < len(e.Columns) {
		return e.Columns[j]
	}
	return fmt.Sprintf("x%d", j)
}
