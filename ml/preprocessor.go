package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// OneHotEncoder turns cases into numeric rows. Categorical features become one
// indicator column per category seen at fit time; numeric features pass through.
// Categories absent from the fitted vocabulary encode as an all-zero block.
//
// A fitted encoder is read-only and safe for concurrent use.
type OneHotEncoder struct {
	Categorical []string            `json:"categorical_features"`
	Numeric     []string            `json:"numeric_features"`
	Vocabulary  map[string][]string `json:"vocabulary"`

	index   map[string]map[string]int
	offsets map[string]int
	width   int
}

// FitEncoder records the vocabulary of each categorical feature from cases.
func FitEncoder(cases []Case, categorical, numeric []string) (*OneHotEncoder, error) {
	if len(cases) == 0 {
		return nil, errors.New("cannot fit encoder on empty data")
	}
	var blank Case
	for _, name := range categorical {
		if _, ok := blank.categorical(name); !ok {
			return nil, fmt.Errorf("unknown categorical feature %q", name)
		}
	}
	for _, name := range numeric {
		if _, ok := blank.numeric(name); !ok {
			return nil, fmt.Errorf("unknown numeric feature %q", name)
		}
	}

	vocabulary := make(map[string][]string, len(categorical))
	for _, name := range categorical {
		seen := make(map[string]struct{})
		for _, c := range cases {
			value, _ := c.categorical(name)
			seen[NormalizeLabel(value)] = struct{}{}
		}
		values := make([]string, 0, len(seen))
		for value := range seen {
			values = append(values, value)
		}
		sort.Strings(values)
		vocabulary[name] = values
	}

	encoder := &OneHotEncoder{
		Categorical: append([]string(nil), categorical...),
		Numeric:     append([]string(nil), numeric...),
		Vocabulary:  vocabulary,
	}
	if err := encoder.buildIndex(); err != nil {
		return nil, err
	}
	return encoder, nil
}

func (e *OneHotEncoder) buildIndex() error {
	e.index = make(map[string]map[string]int, len(e.Categorical))
	e.offsets = make(map[string]int, len(e.Categorical))
	offset := 0
	for _, name := range e.Categorical {
		values, ok := e.Vocabulary[name]
		if !ok {
			return fmt.Errorf("missing vocabulary for %s", name)
		}
		positions := make(map[string]int, len(values))
		for i, value := range values {
			if _, dup := positions[value]; dup {
				return fmt.Errorf("duplicate category %q in %s", value, name)
			}
			positions[value] = i
		}
		e.index[name] = positions
		e.offsets[name] = offset
		offset += len(values)
	}
	e.width = offset + len(e.Numeric)
	return nil
}

// UnmarshalJSON restores the encoder and rebuilds its column index.
func (e *OneHotEncoder) UnmarshalJSON(data []byte) error {
	type plain OneHotEncoder
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = OneHotEncoder(decoded)
	return e.buildIndex()
}

// Width is the number of output columns.
func (e *OneHotEncoder) Width() int {
	return e.width
}

// FeatureNames lists the output columns in order, e.g. "tool_name=Scalpel".
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, e.width)
	for _, name := range e.Categorical {
		for _, value := range e.Vocabulary[name] {
			names = append(names, name+"="+value)
		}
	}
	return append(names, e.Numeric...)
}

// TransformOne encodes a single case.
func (e *OneHotEncoder) TransformOne(c Case) []float64 {
	row := make([]float64, e.width)
	e.encodeInto(row, c)
	return row
}

// Transform encodes cases into a len(cases) x Width matrix.
func (e *OneHotEncoder) Transform(cases []Case) (*mat.Dense, error) {
	if len(cases) == 0 {
		return nil, errors.New("no cases to transform")
	}
	if e.width == 0 {
		return nil, errors.New("encoder has no output columns")
	}
	out := mat.NewDense(len(cases), e.width, nil)
	for i, c := range cases {
		e.encodeInto(out.RawRowView(i), c)
	}
	return out, nil
}

func (e *OneHotEncoder) encodeInto(row []float64, c Case) {
	for i := range row {
		row[i] = 0
	}
	for _, name := range e.Categorical {
		value, _ := c.categorical(name)
		if pos, ok := e.index[name][NormalizeLabel(value)]; ok {
			row[e.offsets[name]+pos] = 1
		}
	}
	numericStart := e.width - len(e.Numeric)
	for i, name := range e.Numeric {
		value, _ := c.numeric(name)
		row[numericStart+i] = value
	}
}
