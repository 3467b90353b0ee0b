package store

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	raven "github.com/getsentry/raven-go"
)

// A S3 store represents a store that is kept on AWS S3 storage, or any
// service speaking the same API.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc      *s3.S3
	uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
}

var (
	_ Store = &S3{}
)

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. This is to allow for a bucket to be used for more than
// one store. For example if prefix were "sips/" then an Open("hello") would
// look for the key "sips/hello" in the bucket. The authorization method and
// credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	svc := s3.New(awsSession)
	return &S3{
		Bucket:   bucket,
		Prefix:   prefix,
		svc:      svc,
		uploader: s3manager.NewUploaderWithClient(svc),
	}
}

// ParseS3URL splits a url of the form "s3://bucket/key" into its bucket and
// key.
func ParseS3URL(u string) (bucket, key string, err error) {
	if !strings.HasPrefix(u, "s3://") {
		return "", "", fmt.Errorf("not an s3 url: %s", u)
	}
	parts := strings.SplitN(strings.TrimPrefix(u, "s3://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed s3 url: %s", u)
	}
	return parts[0], parts[1], nil
}

// ListPrefix returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		log.Println("S3 ListPrefix:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

// Open will return a ReadAtCloser to get the content for the given key. Each
// ReadAt is a ranged GET request.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	size, err := s.stat(key)
	if err != nil {
		return nil, 0, err
	}
	result := &s3ReadAtCloser{
		svc:    s.svc,
		bucket: s.Bucket,
		key:    s.Prefix + key,
		size:   size,
	}
	return result, size, nil
}

// OpenStream returns the body of the given key for reading sequentially,
// along with its size. It uses a single GET request.
func (s *S3) OpenStream(key string) (io.ReadCloser, int64, error) {
	output, err := s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return nil, 0, notExist(err)
	}
	return output.Body, aws.Int64Value(output.ContentLength), nil
}

// Create will return a WriteCloser to upload content to the given key. The
// data is streamed to the s3manager uploader, which switches to a multipart
// upload for large objects. The upload is finished when the writer is
// closed.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	_, err := s.stat(key)
	if err == nil {
		return nil, ErrKeyExists
	}
	pr, pw := io.Pipe()
	wc := &s3WriteCloser{pw: pw, done: make(chan error, 1)}
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
		Body:   pr,
	}
	go func() {
		_, err := s.uploader.Upload(input)
		if err != nil {
			log.Println("S3 Upload:", s.Prefix, key, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
		}
		// unblock any writer if the upload failed early
		pr.CloseWithError(err)
		wc.done <- err
	}()
	return wc, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	}
	return err
}

// stat will check if a key exists, and if so it returns the size. The prefix
// is added to the key before checking.
func (s *S3) stat(key string) (int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		return 0, notExist(err)
	}
	return aws.Int64Value(info.ContentLength), nil
}

// notExist turns a 404 from S3 into ErrNotExist.
func notExist(err error) error {
	if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
		return ErrNotExist
	}
	return err
}

// s3ReadAtCloser adapts ranged GET requests to the ReaderAt interface.
type s3ReadAtCloser struct {
	svc    *s3.S3
	bucket string
	key    string
	size   int64
}

// ReadAt implements the io.ReaderAt interface.
func (rac *s3ReadAtCloser) ReadAt(p []byte, offset int64) (int, error) {
	if offset >= rac.size {
		return 0, io.EOF
	}
	end := offset + int64(len(p))
	if end > rac.size {
		end = rac.size
	}
	output, err := rac.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rac.bucket),
		Key:    aws.String(rac.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end-1)),
	})
	if err != nil {
		// if we get an invalid range error then we have gone too far
		e, ok := err.(awserr.RequestFailure)
		if ok && e.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
			return 0, io.EOF
		}
		log.Println("S3 ReadAt:", rac.key, offset, err)
		return 0, err
	}
	n, err := io.ReadFull(output.Body, p[:end-offset])
	output.Body.Close()
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// Close will close this file.
func (rac *s3ReadAtCloser) Close() error {
	return nil
}

// s3WriteCloser feeds an upload running in another goroutine.
type s3WriteCloser struct {
	pw   *io.PipeWriter
	done chan error
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.pw.Write(p)
}

// Close ends the data stream and waits for the upload to finish.
func (wc *s3WriteCloser) Close() error {
	wc.pw.Close()
	return <-wc.done
}
