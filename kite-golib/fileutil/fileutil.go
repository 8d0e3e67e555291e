package fileutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiteco/skillview/kite-golib/awsutil"
	"github.com/kiteco/skillview/kite-golib/errors"
)

func newReader(path string, s3ReaderMaker func(uri string) (io.ReadCloser, error)) (io.ReadCloser, error) {
	if awsutil.IsS3URI(path) {
		return s3ReaderMaker(path)
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		resp, err := http.Get(path)
		if err != nil {
			return nil, fmt.Errorf("error getting %s: %s", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			io.Copy(ioutil.Discard, resp.Body)
			return nil, errors.Errorf("error getting %s: status code %d", path, resp.StatusCode)
		}
		return resp.Body, nil
	}

	return os.Open(path)
}

// NewReader opens a local or remote path for reading. If the path looks like
// "s3://bucket/path/to/object" then this will read an object from S3. Otherwise, this
// will read a path from the local filesystem.
func NewReader(path string) (io.ReadCloser, error) {
	return newReader(path, awsutil.NewS3Reader)
}

// NewCachedReader is like NewReader but S3 objects are kept in the local S3 cache.
func NewCachedReader(path string) (io.ReadCloser, error) {
	return newReader(path, awsutil.NewCachedS3Reader)
}

// DownloadedFile returns the path of a file downloaded to disk. Local paths are returned as-is
// after checking they exist. S3 objects are pulled into the local cache and the cache path is returned.
// Tools such as ffmpeg need a real file, so video decoding goes through here.
func DownloadedFile(path string) (string, error) {
	if !awsutil.IsS3URI(path) {
		if _, err := os.Stat(path); err != nil {
			return "", err
		}
		return path, nil
	}

	reader, err := NewCachedReader(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(ioutil.Discard, reader); err != nil {
		reader.Close()
		return "", err
	}
	if err := reader.Close(); err != nil {
		return "", err
	}

	s3url, err := awsutil.ValidateURI(path)
	if err != nil {
		return "", err
	}
	return awsutil.CachePath(s3url), nil
}

// ReadFile reads the contents of a local or remote path.
func ReadFile(path string) ([]byte, error) {
	r, err := NewCachedReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

// NewWriter creates a local file for writing, creating parent directories as needed.
func NewWriter(path string) (*os.File, error) {
	if awsutil.IsS3URI(path) {
		return nil, errors.Errorf("%s: writing to s3 is not supported", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

// Exists reports whether a local path exists. Remote paths are assumed to exist.
func Exists(path string) bool {
	if awsutil.IsS3URI(path) || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}
