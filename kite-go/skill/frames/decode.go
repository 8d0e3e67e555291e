package frames

import (
	"fmt"
	"io"
	"sort"

	"github.com/kiteco/skillview/kite-golib/errors"
)

// DecodeError reports a view that could not be decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error decoding %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode reads src from the start and keeps the frames at the given positions, in
// the order of indices and including repeats. indices must be non-empty and non-decreasing.
// The stream is closed on every path.
func Decode(src Source, indices []int) (vt *ViewTensor, err error) {
	fail := func(e error) (*ViewTensor, error) {
		return nil, &DecodeError{Path: src.Path(), Err: e}
	}
	if len(indices) == 0 {
		return fail(errors.New("no frame indices"))
	}
	if !sort.IntsAreSorted(indices) || indices[0] < 0 {
		return fail(errors.Errorf("frame indices %v are not non-decreasing and non-negative", indices))
	}

	stream, err := src.Open()
	if err != nil {
		return fail(err)
	}
	defer func() {
		cerr := stream.Close()
		if cerr == nil {
			return
		}
		cerr = errors.Wrapf(cerr, "error closing stream")
		if derr, ok := err.(*DecodeError); ok {
			derr.Err = errors.Combine(derr.Err, cerr)
			return
		}
		vt, err = fail(cerr)
	}()

	first, last := indices[0], indices[len(indices)-1]
	var (
		next int
		h, w int
		pix  []uint8
	)
	for pos := 0; pos <= last; pos++ {
		f, ferr := stream.Next()
		if ferr == io.EOF {
			return fail(errors.Errorf("stream ended after %d frames, need %d", pos, last+1))
		}
		if ferr != nil {
			return fail(errors.Wrapf(ferr, "error reading frame %d", pos))
		}
		if pos < first {
			continue
		}
		if pix == nil {
			h, w = f.H, f.W
			pix = make([]uint8, 0, len(indices)*h*w*3)
		}
		for next < len(indices) && indices[next] == pos {
			if verr := f.validate(h, w); verr != nil {
				return fail(errors.Wrapf(verr, "frame %d", pos))
			}
			pix = append(pix, f.Pix...)
			next++
		}
	}
	return &ViewTensor{T: len(indices), H: h, W: w, Pix: pix}, nil
}
