package awsutil

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/kiteco/skillview/kite-golib/envutil"
)

var (
	// Path to the S3 cache. Videos are large, so the cache should live on a local SSD.
	cacheroot = envutil.GetenvDefault("SKILLVIEW_S3CACHE", "/var/skillview/s3cache")

	// bucket name -> region, bucket locations never change during a run
	regions sync.Map
)

// IsS3URI returns true if the path is an s3 uri.
func IsS3URI(path string) bool {
	return strings.HasPrefix(path, "s3://")
}

// ValidateURI checks whether the given uri points to S3.
func ValidateURI(uri string) (*url.URL, error) {
	s3url, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if s3url.Scheme != "s3" {
		return nil, fmt.Errorf("%s: url is not a s3 path", s3url.String())
	}
	if s3url.Host == "" {
		return nil, fmt.Errorf("%s: missing bucket", s3url.String())
	}
	return s3url, nil
}

// CachePath returns the location of where the S3 file will be saved on disk.
func CachePath(s3url *url.URL) string {
	return CachePathAt(cacheroot, s3url)
}

// CachePathAt returns the location where the s3 file will be saved on disk,
// rooted at the specified cacheroot.
func CachePathAt(cacheroot string, s3url *url.URL) string {
	return filepath.Join(cacheroot, s3url.Host, s3url.Path)
}

// NewS3Reader returns a io.ReadCloser that will read the contents
// of the file pointed to by the uri. URI will be of the form
// s3://bucket-name/path/to/file
func NewS3Reader(uri string) (io.ReadCloser, error) {
	s3url, err := ValidateURI(uri)
	if err != nil {
		return nil, err
	}
	return objectReader(s3url)
}

// CachedReaderOptions contains options for a cached s3 reader
type CachedReaderOptions struct {
	CacheRoot string
	Logger    io.Writer
}

// NewCachedS3Reader returns an io.ReadCloser that will read the
// contents of the file pointed to by the uri. If the file exists in
// the local cache and its checksum matches the remote object it is read
// from disk; otherwise it is streamed from S3 and copied into the cache as it is read.
func NewCachedS3Reader(uri string) (io.ReadCloser, error) {
	return NewCachedS3ReaderWithOptions(CachedReaderOptions{
		CacheRoot: cacheroot,
		Logger:    os.Stderr,
	}, uri)
}

// NewCachedS3ReaderWithOptions returns a cached s3 reader using the specified options.
func NewCachedS3ReaderWithOptions(opts CachedReaderOptions, uri string) (io.ReadCloser, error) {
	s3url, err := ValidateURI(uri)
	if err != nil {
		return nil, err
	}

	if opts.CacheRoot == "" {
		opts.CacheRoot = cacheroot
	}
	cachepath := CachePathAt(opts.CacheRoot, s3url)

	var etag []byte
	head, err := headS3URL(s3url)
	if err != nil {
		logf(opts.Logger, "failed to compute remote checksum: %v, will try local cache\n", err)
	} else {
		etag = checksumFromHead(head)
	}

	r, err := tryCache(etag, cachepath)
	if err == nil {
		logf(opts.Logger, "cache hit on %s\n", uri)
		return r, nil
	}

	logf(opts.Logger, "cache miss on %s: %v\n", uri, err)
	r, err = objectReader(s3url)
	if err != nil {
		return nil, err
	}

	tmp := filepath.Join(opts.CacheRoot, "tmp")
	if err := os.MkdirAll(tmp, os.ModePerm); err != nil {
		r.Close()
		return nil, err
	}
	return newLateCopyReader(r, cachepath, tmp, etag)
}

// --

func logf(w io.Writer, fmtstr string, args ...interface{}) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, fmtstr, args...)
}

func client(region string) (*s3.S3, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}
	return s3.New(sess, aws.NewConfig().WithRegion(region)), nil
}

func objectRegion(uri *url.URL) (string, error) {
	if region, ok := regions.Load(uri.Host); ok {
		return region.(string), nil
	}

	s3client, err := client("us-west-1")
	if err != nil {
		return "", err
	}

	out, err := s3client.GetBucketLocation(&s3.GetBucketLocationInput{
		Bucket: aws.String(uri.Host),
	})
	if err != nil {
		return "", err
	}

	region := "us-east-1"
	if out.LocationConstraint != nil {
		region = *out.LocationConstraint
	}
	regions.Store(uri.Host, region)
	return region, nil
}

func objectReader(uri *url.URL) (io.ReadCloser, error) {
	region, err := objectRegion(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to determine region: %s", err)
	}

	s3client, err := client(region)
	if err != nil {
		return nil, err
	}

	out, err := s3client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(uri.Host),
		Key:    aws.String(strings.TrimPrefix(uri.Path, "/")),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func headS3URL(s3url *url.URL) (*s3.HeadObjectOutput, error) {
	region, err := objectRegion(s3url)
	if err != nil {
		return nil, fmt.Errorf("unable to determine region: %s", err)
	}

	s3client, err := client(region)
	if err != nil {
		return nil, err
	}

	return s3client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s3url.Host),
		Key:    aws.String(strings.TrimPrefix(s3url.Path, "/")),
	})
}
