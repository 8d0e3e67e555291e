package serialization

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/kiteco/skillview/kite-golib/fileutil"
)

// Decoder matches gob.Decoder, json.Decoder and yaml.Decoder.
type Decoder interface {
	Decode(interface{}) error
}

// ErrStop may be returned by a handler to end decoding without an error.
var ErrStop = errors.New("stop processing requested")

// Decode reads objects from a local file, s3 object or URL. A trailing .gz, .bz2 or .sz
// extension selects decompression and the extension before it selects the encoding:
// .json, .jsonl, .gob, .yaml or .yml.
//
// The handler is either a pointer, which receives the first object, or a function taking a
// pointer and optionally returning an error, which is called once per object:
//
//   var samples []Record
//   err := serialization.Decode("s3://bucket/train.jsonl.gz", func(r *Record) {
//     samples = append(samples, *r)
//   })
func Decode(path string, handler interface{}) error {
	r, err := fileutil.NewCachedReader(path)
	if err != nil {
		return fmt.Errorf("error opening %s: %v", path, err)
	}
	defer r.Close()
	return DecodeAs(r, path, handler)
}

// DecodeAs is Decode reading from r; path only selects the format.
func DecodeAs(r io.Reader, path string, handler interface{}) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	r, release, err := f.reader(r)
	if err != nil {
		return fmt.Errorf("error opening %s: %v", path, err)
	}
	defer release()
	d := f.decoder(r)

	if reflect.ValueOf(handler).Kind() == reflect.Ptr {
		if err := d.Decode(handler); err != nil {
			return fmt.Errorf("error decoding %s: %v", path, err)
		}
		return nil
	}

	elem, call := callback(handler)
	for {
		v := reflect.New(elem)
		err := d.Decode(v.Interface())
		if err == io.EOF {
			return nil
		}
		if err == nil {
			err = call(v)
		}
		if err == ErrStop {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error decoding %s: %v", path, err)
		}
	}
}

// callback validates a func(*T) or func(*T) error handler and returns T with a caller.
func callback(handler interface{}) (reflect.Type, func(reflect.Value) error) {
	fn := reflect.ValueOf(handler)
	if fn.Kind() != reflect.Func {
		panic("serialization: handler must be a pointer or a function")
	}
	ft := fn.Type()
	if ft.NumIn() != 1 || ft.In(0).Kind() != reflect.Ptr || ft.NumOut() > 1 {
		panic("serialization: handler must have the form func(*T) or func(*T) error")
	}
	return ft.In(0).Elem(), func(v reflect.Value) error {
		out := fn.Call([]reflect.Value{v})
		if len(out) == 0 || out[0].IsNil() {
			return nil
		}
		return out[0].Interface().(error)
	}
}
