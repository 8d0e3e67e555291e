package nn

import (
	"encoding/gob"
	"fmt"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/kiteco/skillview/kite-golib/errors"
	"gonum.org/v1/gonum/mat"
)

// Tensor is the serialized form of a parameter.
type Tensor struct {
	Rows, Cols int
	Data       []float64
}

// SaveParams writes params as a snappy-compressed gob map keyed by name.
func SaveParams(w io.Writer, params []*Param) error {
	out := make(map[string]Tensor, len(params))
	for _, p := range params {
		if _, dup := out[p.Name]; dup {
			return errors.Errorf("duplicate parameter name %s", p.Name)
		}
		r, c := p.Dims()
		data := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, p.Value.RawRowView(i)...)
		}
		out[p.Name] = Tensor{Rows: r, Cols: c, Data: data}
	}

	sw := snappy.NewBufferedWriter(w)
	if err := gob.NewEncoder(sw).Encode(out); err != nil {
		return errors.Wrapf(err, "error encoding parameters")
	}
	return sw.Close()
}

// ReadParams reads a map written by SaveParams.
func ReadParams(r io.Reader) (map[string]Tensor, error) {
	var in map[string]Tensor
	if err := gob.NewDecoder(snappy.NewReader(r)).Decode(&in); err != nil {
		return nil, errors.Wrapf(err, "error decoding parameters")
	}
	return in, nil
}

// AssignParams copies tensors into params by name. With requireAll, every param must be present.
// Shapes must match exactly.
func AssignParams(params []*Param, tensors map[string]Tensor, requireAll bool) error {
	var missing []string
	for _, p := range params {
		t, ok := tensors[p.Name]
		if !ok {
			missing = append(missing, p.Name)
			continue
		}
		r, c := p.Dims()
		if t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return fmt.Errorf("parameter %s: stored shape %dx%d does not match %dx%d", p.Name, t.Rows, t.Cols, r, c)
		}
		p.Value.Copy(mat.NewDense(r, c, t.Data))
	}
	if requireAll && len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%d parameters missing from checkpoint, first is %s", len(missing), missing[0])
	}
	return nil
}

// LoadParams reads tensors from r and assigns them to params.
func LoadParams(r io.Reader, params []*Param, requireAll bool) error {
	tensors, err := ReadParams(r)
	if err != nil {
		return err
	}
	return AssignParams(params, tensors, requireAll)
}
