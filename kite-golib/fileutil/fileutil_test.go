package fileutil

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReader(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "foo")
	err = ioutil.WriteFile(path, nil, 0777)
	require.NoError(t, err)

	f, err := NewReader(path)
	require.NoError(t, err)
	defer f.Close()
	assert.IsType(t, &os.File{}, f)

	g, err := NewReader(filepath.Join(dir, "bar"))
	assert.Error(t, err)
	assert.Nil(t, g)
}

func TestDownloadedFile(t *testing.T) {
	tmpFile, err := ioutil.TempFile("", "")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	path, err := DownloadedFile(tmpFile.Name())
	assert.NoError(t, err)
	assert.Equal(t, tmpFile.Name(), path, "a local path should return local path")

	_, err = DownloadedFile(tmpFile.Name() + ".missing")
	assert.Error(t, err)
}

func TestWriterCreatesDirs(t *testing.T) {
	dir, err := ioutil.TempDir("", "")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "a", "b", "config.json")
	w, err := NewWriter(path)
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.True(t, Exists(path))
	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = NewWriter("s3://bucket/key")
	assert.Error(t, err)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "s3://bucket/runs/a/model.bin", Join("s3://bucket/runs", "a", "model.bin"))
	assert.Equal(t, "/tmp/runs/a", Join("/tmp/runs", "a"))
	assert.Equal(t, "https://host/videos/cam01.mp4", Join("https://host/videos/", "cam01.mp4"))
	assert.Equal(t, "runs/a", Join("runs", "a"))
}
