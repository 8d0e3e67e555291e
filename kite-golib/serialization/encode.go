package serialization

import (
	"fmt"
	"io"

	"github.com/kiteco/skillview/kite-golib/fileutil"
)

// Encoder matches gob.Encoder, json.Encoder and yaml.Encoder.
type Encoder interface {
	Encode(interface{}) error
}

// EncodeCloser is an Encoder that owns the stream it writes to.
type EncodeCloser struct {
	encoder Encoder
	// closers are closed in reverse order, the file last
	closers []io.Closer
}

// Encode writes one object.
func (e *EncodeCloser) Encode(x interface{}) error {
	return e.encoder.Encode(x)
}

// Close flushes every layer of the stream and closes the file.
func (e *EncodeCloser) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Encode writes obj to path in the format named by its extension (see Decode).
func Encode(path string, obj interface{}) error {
	enc, err := NewEncoder(path)
	if err != nil {
		return err
	}
	if err := enc.Encode(obj); err != nil {
		enc.Close()
		return fmt.Errorf("error encoding %s: %v", path, err)
	}
	return enc.Close()
}

// NewEncoder creates the local file at path, with parent directories, and returns an
// encoder writing in the format named by its extension.
func NewEncoder(path string) (*EncodeCloser, error) {
	if _, err := formatOf(path); err != nil {
		return nil, err
	}
	f, err := fileutil.NewWriter(path)
	if err != nil {
		return nil, err
	}
	return NewEncoderTo(f, path)
}

// NewEncoderTo wraps w in the compression and encoding named by path. Closing the
// encoder closes w.
func NewEncoderTo(w io.WriteCloser, path string) (*EncodeCloser, error) {
	f, err := formatOf(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	cw, closers, err := f.writer(w)
	if err != nil {
		w.Close()
		return nil, err
	}
	e, c := f.encoder(cw)
	closers = append([]io.Closer{w}, closers...)
	if c != nil {
		closers = append(closers, c)
	}
	return &EncodeCloser{encoder: e, closers: closers}, nil
}
