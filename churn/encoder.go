package churn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/dataset"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/preprocessing"
)

// Encoder turns raw churn columns into the numeric feature matrix, one
// column per schema column in schema order: frequency columns become
// occurrence counts, binary columns 1/0 and numeric columns are parsed.
type Encoder struct {
	Schema    dataset.Schema
	Frequency *preprocessing.FrequencyEncoder
	Binary    *preprocessing.BinaryEncoder
}

// NewEncoder returns an unfitted encoder for schema.
func NewEncoder(schema dataset.Schema) *Encoder {
	return &Encoder{
		Schema:    schema,
		Frequency: preprocessing.NewFrequencyEncoder(),
		Binary:    preprocessing.NewBinaryEncoder(dataset.BinaryPositive, dataset.BinaryNegative, schema.Names(dataset.Binary)...),
	}
}

// Fit learns category frequencies from the given rows of t (nil for all) and
// checks every binary cell of those rows.
func (e *Encoder) Fit(t *dataset.Table, rows []int) error {
	if names := e.Schema.Names(dataset.Frequency); len(names) > 0 {
		freq, err := t.Select(names, rows)
		if err != nil {
			return err
		}
		if err := e.Frequency.Fit(freq); err != nil {
			return scigoErrors.Wrap(err, "fit frequency encoding")
		}
	}
	bin, err := t.Select(e.Schema.Names(dataset.Binary), rows)
	if err != nil {
		return err
	}
	if err := e.Binary.Fit(bin); err != nil {
		return scigoErrors.Wrap(err, "fit binary encoding")
	}
	return nil
}

// IsFitted reports whether Fit has succeeded.
func (e *Encoder) IsFitted() bool {
	freq := !e.UsesState() || (e.Frequency != nil && e.Frequency.IsFitted())
	return freq && e.Binary != nil && e.Binary.IsFitted()
}

// UsesState reports whether the encoded matrix has a frequency column, in
// which case every record must carry a state.
func (e *Encoder) UsesState() bool {
	return len(e.Schema.Indices(dataset.Frequency)) > 0
}

// NFeatures is the width of an encoded matrix.
func (e *Encoder) NFeatures() int {
	return len(e.Schema.Columns)
}

// EncodeTable encodes the given rows of t (nil for all). Unmapped binary
// values fail with UnmappedCategoryError and bad numbers with
// MissingValueError, both naming the table row.
func (e *Encoder) EncodeTable(t *dataset.Table, rows []int) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("Encoder", "EncodeTable")
	}
	n := t.NRows()
	if rows != nil {
		n = len(rows)
	}
	if n == 0 {
		return nil, scigoErrors.NewModelError("Encoder.EncodeTable", "no rows to encode", scigoErrors.ErrEmptyData)
	}
	out := mat.NewDense(n, e.NFeatures(), nil)
	rowID := func(i int) int {
		if rows != nil {
			return rows[i]
		}
		return i
	}

	freqIdx := e.Schema.Indices(dataset.Frequency)
	freq, err := t.Select(e.Schema.Names(dataset.Frequency), rows)
	if err != nil {
		return nil, err
	}
	for i, rec := range freq {
		for k, v := range rec {
			out.Set(i, freqIdx[k], e.Frequency.Frequency(k, v))
		}
	}

	binIdx := e.Schema.Indices(dataset.Binary)
	bin, err := t.Select(e.Schema.Names(dataset.Binary), rows)
	if err != nil {
		return nil, err
	}
	for i, rec := range bin {
		for k, v := range rec {
			code, err := e.Binary.Encode(k, rowID(i), v)
			if err != nil {
				return nil, err
			}
			out.Set(i, binIdx[k], code)
		}
	}

	numIdx := e.Schema.Indices(dataset.Numeric)
	num, err := t.Numeric(e.Schema.Names(dataset.Numeric), rows)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		for k, j := range numIdx {
			out.Set(i, j, num.At(i, k))
		}
	}
	return out, nil
}

// EncodeRecords encodes API records. Binary fields must already be 0 or 1.
// When the schema has a State column a record without state fails with
// MissingValueError; an unseen state encodes to 0 as it does in EncodeTable.
func (e *Encoder) EncodeRecords(records []Record) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("Encoder", "EncodeRecords")
	}
	if len(records) == 0 {
		return nil, scigoErrors.NewModelError("Encoder.EncodeRecords", "no records to encode", scigoErrors.ErrEmptyData)
	}
	out := mat.NewDense(len(records), e.NFeatures(), nil)
	for i, r := range records {
		fields := r.Fields()
		freqCol := 0
		for j, c := range e.Schema.Columns {
			switch c.Kind {
			case dataset.Frequency:
				if c.Field != "state" || r.State == nil {
					return nil, scigoErrors.NewMissingValueError(c.Name, i, "")
				}
				out.Set(i, j, e.Frequency.Frequency(freqCol, *r.State))
				freqCol++
			case dataset.Binary:
				v, ok := fields[c.Field]
				if !ok {
					return nil, scigoErrors.NewMissingValueError(c.Name, i, "")
				}
				if v != 0 && v != 1 {
					return nil, scigoErrors.NewUnmappedCategoryError(c.Name, i, fmt.Sprint(v))
				}
				out.Set(i, j, v)
			default:
				v, ok := fields[c.Field]
				if !ok {
					return nil, scigoErrors.NewMissingValueError(c.Name, i, "")
				}
				out.Set(i, j, v)
			}
		}
	}
	if err := scigoErrors.CheckMatrix("Encoder.EncodeRecords", out, out.RawMatrix().Rows, out.RawMatrix().Cols, 0); err != nil {
		return nil, err
	}
	return out, nil
}
