package serialization

import (
	"compress/bzip2"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/golang/snappy"
	yaml "gopkg.in/yaml.v2"
)

// format is the encoding and optional compression named by a file extension,
// e.g. "samples.jsonl.gz" is {encoding: "jsonl", compression: "gz"}.
type format struct {
	encoding    string
	compression string
}

func formatOf(p string) (format, error) {
	var f format
	ext := strings.TrimPrefix(path.Ext(p), ".")
	switch ext {
	case "gz", "bz2", "sz":
		f.compression = ext
		p = strings.TrimSuffix(p, "."+ext)
		ext = strings.TrimPrefix(path.Ext(p), ".")
	}
	switch ext {
	case "json", "jsonl", "gob", "yaml", "yml":
		f.encoding = ext
	default:
		return format{}, fmt.Errorf("unsupported file extension in %s", p)
	}
	return f, nil
}

// reader undoes the compression of r. The returned closer releases decompressor state.
func (f format) reader(r io.Reader) (io.Reader, func(), error) {
	switch f.compression {
	case "gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case "bz2":
		return bzip2.NewReader(r), func() {}, nil
	case "sz":
		return snappy.NewReader(r), func() {}, nil
	}
	return r, func() {}, nil
}

func (f format) decoder(r io.Reader) Decoder {
	switch f.encoding {
	case "gob":
		return gob.NewDecoder(r)
	case "yaml", "yml":
		return yaml.NewDecoder(r)
	}
	return json.NewDecoder(r)
}

// writer compresses into w. Closers are returned innermost first.
func (f format) writer(w io.Writer) (io.Writer, []io.Closer, error) {
	switch f.compression {
	case "gz":
		gz := gzip.NewWriter(w)
		return gz, []io.Closer{gz}, nil
	case "sz":
		sz := snappy.NewBufferedWriter(w)
		return sz, []io.Closer{sz}, nil
	case "bz2":
		return nil, nil, fmt.Errorf("writing bz2 is not supported")
	}
	return w, nil, nil
}

func (f format) encoder(w io.Writer) (Encoder, io.Closer) {
	switch f.encoding {
	case "gob":
		return gob.NewEncoder(w), nil
	case "yaml", "yml":
		ye := yaml.NewEncoder(w)
		return ye, ye
	}
	return json.NewEncoder(w), nil
}
