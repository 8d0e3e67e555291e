package awsutil

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/service/s3"
)

// entrySuffix names the sidecar written next to every cached object.
const entrySuffix = ".s3cache.json"

// cacheEntry records which remote version a cached file was downloaded from.
type cacheEntry struct {
	MD5      string    `json:"md5"`
	ETag     string    `json:"etag"`
	Fetched  time.Time `json:"fetched"`
	FileSize int64     `json:"size"`
}

func fileMD5(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// readEntry returns the sidecar of a cached file. Files cached without one get an entry
// whose ETag is their own md5, which is what S3 reports for single-part uploads.
func readEntry(path string) (cacheEntry, error) {
	sum, size, err := fileMD5(path)
	if err != nil {
		return cacheEntry{}, err
	}

	buf, err := ioutil.ReadFile(path + entrySuffix)
	if os.IsNotExist(err) {
		return cacheEntry{MD5: sum, ETag: sum, FileSize: size}, nil
	} else if err != nil {
		return cacheEntry{}, err
	}

	var e cacheEntry
	if err := json.Unmarshal(buf, &e); err != nil {
		return cacheEntry{}, err
	}
	if e.MD5 != sum || e.FileSize != size {
		return cacheEntry{}, errCorruptEntry
	}
	return e, nil
}

func writeEntry(path string, e cacheEntry) error {
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path+entrySuffix, buf, 0666)
}

// checksumFromHead returns the version tag S3 reports for an object.
func checksumFromHead(head *s3.HeadObjectOutput) []byte {
	// s3cmd multipart uploads carry the md5 of the whole file in their metadata
	if attrs, ok := head.Metadata["S3cmd-Attrs"]; ok && attrs != nil {
		for _, p := range strings.Split(*attrs, "/") {
			if strings.HasPrefix(p, "md5:") {
				return []byte(strings.TrimPrefix(p, "md5:"))
			}
		}
	}
	if head.ETag == nil {
		return nil
	}
	return []byte(strings.Trim(*head.ETag, `"`))
}
