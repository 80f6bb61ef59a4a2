package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// Table is a CSV file held as strings, addressed by header name.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// NewTable builds a Table from a header and rows of the same width.
func NewTable(header []string, rows [][]string) (*Table, error) {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		t.Header[i] = name
		if _, dup := t.index[name]; dup {
			return nil, scigoErrors.NewValidationError("header", "duplicate column", name)
		}
		t.index[name] = i
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return nil, scigoErrors.NewDimensionError("dataset row "+strconv.Itoa(i), len(header), len(row), 1)
		}
	}
	return t, nil
}

// Read parses CSV with a header row from r.
func Read(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, scigoErrors.Wrap(err, "failed to parse dataset")
	}
	if len(records) == 0 {
		return nil, scigoErrors.NewModelError("dataset.Read", "no header row", scigoErrors.ErrEmptyData)
	}
	return NewTable(records[0], records[1:])
}

// Load reads the CSV file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "failed to load dataset %s", path)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "failed to load dataset %s", path)
	}
	log.GetLoggerWithName("dataset").Info("Dataset loaded",
		log.PathKey, path,
		log.SamplesKey, t.NRows(),
		"columns", len(t.Header),
	)
	return t, nil
}

// NRows is the number of data rows.
func (t *Table) NRows() int {
	return len(t.Rows)
}

// Has reports whether the table has a column called name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]string, bool) {
	j, ok := t.index[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[j]
	}
	return out, true
}

// Select returns the given columns for the given rows as an
// n_rows × n_columns string matrix. A nil rows selects every row.
func (t *Table) Select(names []string, rows []int) ([][]string, error) {
	cols := make([]int, len(names))
	for k, name := range names {
		j, ok := t.index[name]
		if !ok {
			return nil, scigoErrors.NewMissingColumnError([]string{name})
		}
		cols[k] = j
	}
	if rows == nil {
		rows = make([]int, len(t.Rows))
		for i := range rows {
			rows[i] = i
		}
	}
	out := make([][]string, len(rows))
	for k, i := range rows {
		rec := make([]string, len(cols))
		for c, j := range cols {
			rec[c] = t.Rows[i][j]
		}
		out[k] = rec
	}
	return out, nil
}

// Validate checks that every column schema needs is present. It returns the
// table's columns the schema does not use.
func (t *Table) Validate(s Schema) (extra []string, err error) {
	var missing []string
	for _, name := range s.Required() {
		if !t.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, scigoErrors.NewMissingColumnError(missing)
	}
	used := make(map[string]bool)
	for _, name := range s.Required() {
		used[name] = true
	}
	for _, h := range t.Header {
		if !used[h] {
			extra = append(extra, h)
		}
	}
	return extra, nil
}

// Labels parses the schema's label column into 0/1.
func (t *Table) Labels(s Schema) ([]int, error) {
	values, ok := t.Column(s.Label)
	if !ok {
		return nil, scigoErrors.NewMissingColumnError([]string{s.Label})
	}
	labels := make([]int, len(values))
	for i, v := range values {
		l, err := ParseLabel(v)
		if err != nil {
			return nil, scigoErrors.Wrapf(err, "row %d", i)
		}
		labels[i] = l
	}
	return labels, nil
}

// ParseLabel maps the boolean spellings found in churn exports to 0/1.
func ParseLabel(v string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "1.0":
		return 1, nil
	case "false", "0", "no", "0.0":
		return 0, nil
	}
	return 0, scigoErrors.NewValidationError("label", "not a boolean value", v)
}

// Numeric parses the named columns for the given rows into a matrix. Empty or
// unparseable cells fail with a MissingValueError.
func (t *Table) Numeric(names []string, rows []int) (*mat.Dense, error) {
	cells, err := t.Select(names, rows)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 || len(names) == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(len(cells), len(names), nil)
	for i, rec := range cells {
		row := i
		if rows != nil {
			row = rows[i]
		}
		for j, cell := range rec {
			s := strings.TrimSpace(cell)
			v, err := strconv.ParseFloat(s, 64)
			if s == "" || err != nil {
				return nil, scigoErrors.NewMissingValueError(names[j], row, s)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// Profile summarizes data quality.
type Profile struct {
	Rows             int
	MissingPerColumn map[string]int
	DuplicateRows    int
}

// Profile counts empty cells per column and fully duplicated rows.
func (t *Table) Profile() Profile {
	p := Profile{Rows: len(t.Rows), MissingPerColumn: make(map[string]int)}
	seen := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		for j, cell := range row {
			if strings.TrimSpace(cell) == "" {
				p.MissingPerColumn[t.Header[j]]++
			}
		}
		key := strings.Join(row, "\x1f")
		if _, dup := seen[key]; dup {
			p.DuplicateRows++
		} else {
			seen[key] = struct{}{}
		}
	}
	return p
}

// TotalMissing sums missing cells over all columns.
func (p Profile) TotalMissing() int {
	n := 0
	for _, c := range p.MissingPerColumn {
		n += c
	}
	return n
}
