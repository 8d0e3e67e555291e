package awsutil

import (
	"bytes"
	"errors"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error {
	return nil
}

type errorReadCloser struct{}

func (errorReadCloser) Read(buf []byte) (int, error) {
	return 0, errors.New("mock error")
}

func (errorReadCloser) Close() error {
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCachePath(t *testing.T) {
	u, err := ValidateURI("s3://skill-data/takes/cam01.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/cache", "skill-data", "takes", "cam01.mp4"), CachePathAt("/tmp/cache", u))
}

func TestValidateURI(t *testing.T) {
	_, err := ValidateURI("/local/video.mp4")
	assert.Error(t, err)
	_, err = ValidateURI("s3:///no-bucket")
	assert.Error(t, err)
	assert.True(t, IsS3URI("s3://bucket/key"))
	assert.False(t, IsS3URI("https://bucket/key"))
}

func TestCopyingReader_Normal(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "nested", "video.mp4")

	copyr, err := newLateCopyReader(nopCloser{bytes.NewBufferString("frames")}, path, dir, []byte("etag"))
	require.NoError(t, err)
	temp := copyr.temp.Name()

	assert.False(t, fileExists(path))

	data, err := ioutil.ReadAll(copyr)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))
	require.NoError(t, copyr.Close())

	cached, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(cached))
	assert.False(t, fileExists(temp))

	// the stored etag makes the next lookup a hit
	r, err := tryCache([]byte("etag"), path)
	require.NoError(t, err)
	r.Close()

	_, err = tryCache([]byte("other"), path)
	assert.Error(t, err)
}

func TestCopyingReader_NothingRead(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "video.mp4")

	copyr, err := newLateCopyReader(nopCloser{bytes.NewBufferString("frames")}, path, dir, nil)
	require.NoError(t, err)
	temp := copyr.temp.Name()

	require.NoError(t, copyr.Close())
	assert.False(t, fileExists(path))
	assert.False(t, fileExists(temp))
}

func TestCopyingReader_ErrorOnRead(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "video.mp4")

	copyr, err := newLateCopyReader(errorReadCloser{}, path, dir, nil)
	require.NoError(t, err)
	temp := copyr.temp.Name()

	_, err = ioutil.ReadAll(copyr)
	assert.Error(t, err)
	require.NoError(t, copyr.Close())

	assert.False(t, fileExists(path))
	assert.False(t, fileExists(temp))
}

func TestTryCacheWithoutChecksum(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	u := &url.URL{Scheme: "s3", Host: "bucket", Path: "/a.jsonl"}
	path := CachePathAt(dir, u)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, ioutil.WriteFile(path, []byte("{}"), 0666))

	r, err := tryCache(nil, path)
	require.NoError(t, err)
	defer r.Close()
	data, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}
