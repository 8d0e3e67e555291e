package awsutil

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	errStale        = errors.New("cached copy is out of date")
	errCorruptEntry = errors.New("cached copy does not match its recorded checksum")
)

// lateCopyReader wraps an io.ReadCloser and copies all data received to a temporary file.
// If the entire stream is consumed without error then the temporary file is moved to the
// cache path. If any errors are encountered or the reader is closed before EOF then the
// temporary file is destroyed, so partially downloaded videos never land in the cache.
type lateCopyReader struct {
	path     string
	temp     *os.File
	tee      io.Reader
	hash     hash.Hash
	orig     io.Closer
	checksum []byte
}

func newLateCopyReader(r io.ReadCloser, copyto, tmpDir string, checksum []byte) (*lateCopyReader, error) {
	f, err := ioutil.TempFile(tmpDir, "")
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary file: %v", err)
	}
	h := md5.New()
	return &lateCopyReader{
		temp:     f,
		path:     copyto,
		tee:      io.TeeReader(io.TeeReader(r, h), f),
		hash:     h,
		orig:     r,
		checksum: checksum,
	}, nil
}

func (r *lateCopyReader) Read(p []byte) (int, error) {
	// it is possible to get n > 0 and err == EOF
	n, err := r.tee.Read(p)
	if err != nil {
		if err == io.EOF {
			if cacheErr := r.commitToCache(); cacheErr != nil {
				log.Println(cacheErr)
			}
		} else {
			r.cancel()
		}
	}
	return n, err
}

func (r *lateCopyReader) Close() error {
	r.cancel()
	return r.orig.Close()
}

func (r *lateCopyReader) commitToCache() error {
	if r.temp == nil {
		return nil
	}
	path := r.temp.Name()
	r.temp.Close()
	r.temp = nil

	if err := os.MkdirAll(filepath.Dir(r.path), 0777); err != nil {
		os.Remove(path)
		return fmt.Errorf("error creating dir within cache: %v", err)
	}
	if err := os.Rename(path, r.path); err != nil {
		os.Remove(path)
		return fmt.Errorf("error moving temp file into cache: %v", err)
	}
	if r.checksum == nil {
		return nil
	}
	info, err := os.Stat(r.path)
	if err != nil {
		return err
	}
	return writeEntry(r.path, cacheEntry{
		MD5:      hex.EncodeToString(r.hash.Sum(nil)),
		ETag:     string(r.checksum),
		Fetched:  time.Now(),
		FileSize: info.Size(),
	})
}

func (r *lateCopyReader) cancel() {
	if r.temp == nil {
		return
	}
	path := r.temp.Name()
	if err := r.temp.Close(); err != nil {
		log.Println("error closing temporary file:", err)
	}
	if err := os.Remove(path); err != nil {
		log.Printf("error deleting %s: %v\n", path, err)
	}
	r.temp = nil
}

// tryCache opens the cached copy of an object if it exists and is up to date.
// A nil checksum skips the freshness check.
func tryCache(checksum []byte, cachepath string) (io.ReadCloser, error) {
	if checksum != nil {
		e, err := readEntry(cachepath)
		if err != nil {
			return nil, fmt.Errorf("failed to check cached copy: %v", err)
		}
		if e.ETag != string(checksum) {
			return nil, errStale
		}
	}
	return os.Open(cachepath)
}
