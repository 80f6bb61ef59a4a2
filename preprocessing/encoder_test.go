package preprocessing_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/preprocessing"
)

func TestFrequencyEncoder_CountsOccurrences(t *testing.T) {
	data := [][]string{{"OH"}, {"KS"}, {"OH"}, {"NJ"}, {"OH"}}

	enc := preprocessing.NewFrequencyEncoder()
	out, err := enc.FitTransform(data)
	require.NoError(t, err)

	want := mat.NewDense(5, 1, []float64{3, 1, 3, 1, 3})
	assert.True(t, mat.Equal(want, out))
	assert.Equal(t, map[string]int{"KS": 1, "NJ": 1, "OH": 3}, enc.Counts[0])
}

func TestFrequencyEncoder_UnseenEncodesToZero(t *testing.T) {
	enc := preprocessing.NewFrequencyEncoder()
	require.NoError(t, enc.Fit([][]string{{"OH"}, {"OH"}}))

	out, err := enc.Transform([][]string{{"OH"}, {"TX"}, {""}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.At(0, 0))
	assert.Equal(t, 0.0, out.At(1, 0))
	assert.Equal(t, 0.0, out.At(2, 0))

	assert.Equal(t, 2.0, enc.Frequency(0, "OH"))
	assert.Equal(t, 0.0, enc.Frequency(0, "TX"))
	assert.Equal(t, 0.0, enc.Frequency(3, "OH"))
}

func TestFrequencyEncoder_Errors(t *testing.T) {
	enc := preprocessing.NewFrequencyEncoder()

	_, err := enc.Transform([][]string{{"OH"}})
	var nf *scigoErrors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	assert.Error(t, enc.Fit(nil))

	require.NoError(t, enc.Fit([][]string{{"OH", "x"}}))
	_, err = enc.Transform([][]string{{"OH"}})
	var dim *scigoErrors.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestBinaryEncoder_MapsYesNo(t *testing.T) {
	enc := preprocessing.NewBinaryEncoder("Yes", "No", "International plan", "Voice mail plan")
	out, err := enc.FitTransform([][]string{
		{"Yes", "No"},
		{"No", " Yes "},
	})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), out))
}

func TestBinaryEncoder_RejectsUnmappedValues(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"lowercase", "yes"},
		{"empty", ""},
		{"other", "Maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := preprocessing.NewBinaryEncoder("Yes", "No", "International plan", "Voice mail plan")
			err := enc.Fit([][]string{{"Yes", "No"}, {"No", tt.value}})

			var unmapped *scigoErrors.UnmappedCategoryError
			require.True(t, errors.As(err, &unmapped), "got %v", err)
			assert.Equal(t, "Voice mail plan", unmapped.Column)
			assert.Equal(t, 1, unmapped.Row)
			assert.Equal(t, tt.value, unmapped.Value)
			assert.False(t, enc.IsFitted())
		})
	}
}

func TestBinaryEncoder_ColumnCountMustMatchNames(t *testing.T) {
	enc := preprocessing.NewBinaryEncoder("Yes", "No", "International plan")
	err := enc.Fit([][]string{{"Yes", "No"}})
	var dim *scigoErrors.DimensionError
	assert.True(t, errors.As(err, &dim))
}
