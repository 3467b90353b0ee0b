package harvest

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/store"
)

// splitBucketPrefix separates the bucket name from the prefix in location.
// The returned prefix is either empty or ends with a slash.
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string) (bucket, prefix string) {
	location = strings.TrimPrefix(location, "/")
	if location == "" {
		return
	}
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = path.Clean(v[1])
		if prefix == "." {
			prefix = ""
		}
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// ParseLocation returns the store described by location. The empty string
// gives nil, meaning no store. "memory" gives a store.Memory. An s3 scheme
// gives a store.S3, where a host in the location is taken as the endpoint
// of an S3 compatible service. Anything else is a directory, which is
// created if needed.
func ParseLocation(location, region string) (store.Store, error) {
	switch location {
	case "":
		return nil, nil
	case "memory":
		return store.NewMemory(), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrap(err, location)
	}
	switch u.Scheme {
	case "", "file":
		err = os.MkdirAll(u.Path, 0775)
		if err != nil {
			return nil, err
		}
		return store.NewFileSystem(filepath.FromSlash(u.Path)), nil
	case "s3":
		bucket, prefix := splitBucketPrefix(u.Path)
		if bucket == "" {
			return nil, errors.Errorf("no bucket name in %s", location)
		}
		return store.NewS3(bucket, prefix, session.New(awsConfig(u.Host, region))), nil
	}
	return nil, errors.Errorf("unknown store location %s", location)
}

// awsConfig returns the configuration for an S3 service at host. An empty
// host means AWS itself.
func awsConfig(host, region string) *aws.Config {
	if region == "" {
		region = "us-east-1"
	}
	conf := &aws.Config{Region: aws.String(region)}
	if host != "" {
		conf.Endpoint = aws.String(host)
		// local development servers have no TLS
		if strings.Contains(host, "localhost") {
			conf.DisableSSL = aws.Bool(true)
			conf.S3ForcePathStyle = aws.Bool(true)
		}
	}
	return conf
}
