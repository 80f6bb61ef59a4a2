package dataset_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/churn/dataset"
	"github.com/ezoic/churn/dataset/datasettest"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

func TestLoadGeneratedDataset(t *testing.T) {
	path := datasettest.WriteCSV(t, t.TempDir(), 50, 1)

	table, err := dataset.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, table.NRows())

	extra, err := table.Validate(dataset.ChurnSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{datasettest.ExtraColumn}, extra)

	labels, err := table.Labels(dataset.ChurnSchema)
	require.NoError(t, err)
	assert.Len(t, labels, 50)
	for _, l := range labels {
		assert.Contains(t, []int{0, 1}, l)
	}

	X, err := table.Numeric(dataset.ChurnSchema.Names(dataset.Numeric), nil)
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 50, r)
	assert.Equal(t, 12, c)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := dataset.Load(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidateReportsMissingColumns(t *testing.T) {
	table, err := dataset.Read(strings.NewReader("State,Churn\nOH,False\n"))
	require.NoError(t, err)

	_, err = table.Validate(dataset.ChurnSchema)
	var mc *scigoErrors.MissingColumnError
	require.True(t, errors.As(err, &mc))
	assert.Contains(t, mc.Columns, "Total day minutes")
	assert.NotContains(t, mc.Columns, "State")
}

func TestReadRejectsRaggedRows(t *testing.T) {
	_, err := dataset.Read(strings.NewReader("a,b\n1,2\n3\n"))
	assert.Error(t, err)
}

func TestReadStripsByteOrderMark(t *testing.T) {
	table, err := dataset.Read(bytes.NewReader([]byte("\ufeffState,Churn\nOH,True\n")))
	require.NoError(t, err)
	assert.True(t, table.Has("State"))
}

func TestNumericReportsMissingValues(t *testing.T) {
	table, err := dataset.Read(strings.NewReader("x,y\n1,2\n3,\n4,abc\n"))
	require.NoError(t, err)

	_, err = table.Numeric([]string{"x", "y"}, nil)
	var mv *scigoErrors.MissingValueError
	require.True(t, errors.As(err, &mv))
	assert.Equal(t, "y", mv.Column)
	assert.Equal(t, 1, mv.Row)

	_, err = table.Numeric([]string{"y"}, []int{2})
	require.True(t, errors.As(err, &mv))
	assert.Equal(t, 2, mv.Row)
	assert.Equal(t, "abc", mv.Value)

	X, err := table.Numeric([]string{"x"}, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, 4.0, X.At(0, 0))
	assert.Equal(t, 1.0, X.At(1, 0))
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"True", 1, false},
		{"false", 0, false},
		{" 1 ", 1, false},
		{"0", 0, false},
		{"Yes", 1, false},
		{"churned", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := dataset.ParseLabel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestProfile(t *testing.T) {
	table, err := dataset.Read(strings.NewReader("a,b\n1,2\n1,2\n,3\n4, \n"))
	require.NoError(t, err)

	p := table.Profile()
	assert.Equal(t, 4, p.Rows)
	assert.Equal(t, 1, p.DuplicateRows)
	assert.Equal(t, 1, p.MissingPerColumn["a"])
	assert.Equal(t, 1, p.MissingPerColumn["b"])
	assert.Equal(t, 2, p.TotalMissing())
}

func TestSchemaHelpers(t *testing.T) {
	s := dataset.ChurnSchema
	assert.Equal(t, []string{"State"}, s.Names(dataset.Frequency))
	assert.Equal(t, []string{"International plan", "Voice mail plan"}, s.Names(dataset.Binary))
	assert.Len(t, s.Names(dataset.Numeric), 12)
	assert.Equal(t, []int{2, 3}, s.Indices(dataset.Binary))
	assert.Equal(t, "Churn", s.Required()[0])
	assert.Equal(t, "true", dataset.LabelName(1))
	assert.Equal(t, "false", dataset.LabelName(0))
	assert.Equal(t, "2", dataset.LabelName(2))

	requestFields := s.Without(dataset.Frequency)
	assert.Len(t, requestFields.Columns, 14)
	assert.Empty(t, requestFields.Names(dataset.Frequency))
	assert.Equal(t, []int{1, 2}, requestFields.Indices(dataset.Binary))
	assert.NotContains(t, requestFields.Required(), "State")
	assert.Len(t, s.Columns, 15, "Without leaves the receiver alone")
}
