// Package dataset loads the customer churn table and describes its schema.
package dataset

import "strconv"

// Kind is how a feature column is turned into a number.
type Kind int

const (
	// Numeric columns are parsed as floats.
	Numeric Kind = iota
	// Binary columns hold Yes/No and map to 1/0.
	Binary
	// Frequency columns are categorical and encode to occurrence counts.
	Frequency
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Binary:
		return "binary"
	case Frequency:
		return "frequency"
	default:
		return "unknown"
	}
}

// Column is one feature column of the schema. Field is the snake_case name
// used on the wire.
type Column struct {
	Name  string
	Field string
	Kind  Kind
}

// Schema fixes the label column and the ordered feature columns. The order of
// Columns is the column order of every feature matrix built from a Table.
type Schema struct {
	Label   string
	Columns []Column
}

// BinaryPositive and BinaryNegative are the two values of a Binary column.
const (
	BinaryPositive = "Yes"
	BinaryNegative = "No"
)

// ChurnSchema is the telecom churn dataset layout. The non-frequency columns
// are, in order, the fields of a prediction request. State is only a model
// feature when preparation asks for it; see Without.
var ChurnSchema = Schema{
	Label: "Churn",
	Columns: []Column{
		{Name: "State", Field: "state", Kind: Frequency},
		{Name: "Account length", Field: "account_length", Kind: Numeric},
		{Name: "International plan", Field: "international_plan", Kind: Binary},
		{Name: "Voice mail plan", Field: "voice_mail_plan", Kind: Binary},
		{Name: "Number vmail messages", Field: "number_vmail_messages", Kind: Numeric},
		{Name: "Total day minutes", Field: "total_day_minutes", Kind: Numeric},
		{Name: "Total day calls", Field: "total_day_calls", Kind: Numeric},
		{Name: "Total day charge", Field: "total_day_charge", Kind: Numeric},
		{Name: "Total eve minutes", Field: "total_eve_minutes", Kind: Numeric},
		{Name: "Total eve calls", Field: "total_eve_calls", Kind: Numeric},
		{Name: "Total night minutes", Field: "total_night_minutes", Kind: Numeric},
		{Name: "Total night calls", Field: "total_night_calls", Kind: Numeric},
		{Name: "Total intl minutes", Field: "total_intl_minutes", Kind: Numeric},
		{Name: "Total intl calls", Field: "total_intl_calls", Kind: Numeric},
		{Name: "Customer service calls", Field: "customer_service_calls", Kind: Numeric},
	},
}

// FeatureNames returns the feature column names in order.
func (s Schema) FeatureNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Without returns a copy of s without the columns of the given kinds.
func (s Schema) Without(kinds ...Kind) Schema {
	drop := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		drop[k] = true
	}
	out := Schema{Label: s.Label}
	for _, c := range s.Columns {
		if !drop[c.Kind] {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// Required returns the label followed by every feature column name.
func (s Schema) Required() []string {
	return append([]string{s.Label}, s.FeatureNames()...)
}

// Indices returns the positions in Columns of every column of kind.
func (s Schema) Indices(kind Kind) []int {
	var out []int
	for i, c := range s.Columns {
		if c.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// Names returns the names of every column of kind, in schema order.
func (s Schema) Names(kind Kind) []string {
	var out []string
	for _, c := range s.Columns {
		if c.Kind == kind {
			out = append(out, c.Name)
		}
	}
	return out
}

// LabelNames maps encoded labels to their display names.
var LabelNames = map[int]string{0: "false", 1: "true"}

// LabelName returns the display name of label.
func LabelName(label int) string {
	if n, ok := LabelNames[label]; ok {
		return n
	}
	return strconv.Itoa(label)
}
