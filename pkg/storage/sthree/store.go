// Package sthree implements the "s3" blob provider on AWS S3 or any
// S3-compatible endpoint.
package sthree

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/status"
	digest "github.com/opencontainers/go-digest"
)

const providerName = "s3"

// Option configures the store
type Option func(*s3FS)

// Bucket sets the bucket blobs live in
func Bucket(bucket string) Option {
	return func(fs *s3FS) {
		fs.bucket = bucket
	}
}

// Prefix sets a key prefix within the bucket
func Prefix(prefix string) Option {
	return func(fs *s3FS) {
		fs.prefix = prefix
	}
}

// AWSConfig overrides the AWS client configuration (region, endpoint,
// credentials)
func AWSConfig(cfg *aws.Config) Option {
	return func(fs *s3FS) {
		fs.awsConfig = cfg
	}
}

// New creates an S3-backed blob store
func New(opts ...Option) storage.Store {
	fs := new(s3FS)
	for _, apply := range opts {
		apply(fs)
	}
	fs.s3 = s3.New(session.Must(session.NewSession(fs.awsConfig)))
	fs.uploader = s3manager.NewUploaderWithClient(fs.s3)
	return fs
}

type s3FS struct {
	bucket    string
	prefix    string
	awsConfig *aws.Config
	s3        *s3.S3
	uploader  *s3manager.Uploader
}

func (s *s3FS) String() string {
	return providerName + "://" + s.bucket
}

func (s *s3FS) BuildURI(d digest.Digest) (string, error) {
	return model.BuildBlobURI(providerName, s.bucket, s.prefix, d)
}

func (s *s3FS) key(d digest.Digest) (string, error) {
	if err := model.ValidateDigest(d); err != nil {
		return "", err
	}
	return model.BlobKey(s.prefix, d), nil
}

func (s *s3FS) ExistsByDigest(ctx context.Context, d digest.Digest) (bool, error) {
	key, err := s.key(d)
	if err != nil {
		return false, err
	}
	_, err = s.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if rerr, ok := err.(awserr.RequestFailure); ok && rerr.StatusCode() == 404 {
			return false, nil
		}
		return false, status.ErrProvider.Wrap(err)
	}
	return true, nil
}

func (s *s3FS) PutByDigest(ctx context.Context, d digest.Digest, rdr io.Reader) (model.BlobRef, error) {
	uri, err := s.BuildURI(d)
	if err != nil {
		return model.BlobRef{}, err
	}
	ref := model.BlobRef{URI: uri}

	// content-addressed keys make re-uploads a no-op
	if ok, err := s.ExistsByDigest(ctx, d); err != nil {
		return model.BlobRef{}, err
	} else if ok {
		return ref, nil
	}

	key, err := s.key(d)
	if err != nil {
		return model.BlobRef{}, err
	}
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   rdr,
	})
	if err != nil {
		return model.BlobRef{}, status.ErrProvider.Wrap(err)
	}
	return ref, nil
}

func (s *s3FS) GetByDigest(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	key, err := s.key(d)
	if err != nil {
		return nil, err
	}
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if rerr, ok := err.(awserr.RequestFailure); ok && rerr.StatusCode() == 404 {
			return nil, status.ErrNotFound.WrapMessage(d.String())
		}
		return nil, status.ErrProvider.Wrap(err)
	}
	return obj.Body, nil
}
