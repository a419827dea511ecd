// Package gcs implements the "gcs" blob provider on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"

	gcsStorage "cloud.google.com/go/storage"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/storage/status"
	digest "github.com/opencontainers/go-digest"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const providerName = "gcs"

type gcs struct {
	client *gcsStorage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed blob store on the given bucket
func New(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (storage.Store, error) {
	client, err := gcsStorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, status.ErrProvider.Wrap(err)
	}
	return &gcs{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (g *gcs) String() string {
	return providerName + "://" + g.bucket
}

func (g *gcs) BuildURI(d digest.Digest) (string, error) {
	return model.BuildBlobURI(providerName, g.bucket, g.prefix, d)
}

func (g *gcs) object(d digest.Digest) (*gcsStorage.ObjectHandle, error) {
	if err := model.ValidateDigest(d); err != nil {
		return nil, err
	}
	return g.client.Bucket(g.bucket).Object(model.BlobKey(g.prefix, d)), nil
}

func (g *gcs) ExistsByDigest(ctx context.Context, d digest.Digest) (bool, error) {
	obj, err := g.object(d)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if err != nil {
		if err == gcsStorage.ErrObjectNotExist {
			return false, nil
		}
		return false, status.ErrProvider.Wrap(err)
	}
	return true, nil
}

func (g *gcs) PutByDigest(ctx context.Context, d digest.Digest, rdr io.Reader) (model.BlobRef, error) {
	uri, err := g.BuildURI(d)
	if err != nil {
		return model.BlobRef{}, err
	}
	obj, err := g.object(d)
	if err != nil {
		return model.BlobRef{}, err
	}

	// conditional write keeps the put idempotent under concurrency: a
	// precondition failure means another writer already landed this digest
	w := obj.If(gcsStorage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err = io.Copy(w, rdr); err != nil {
		_ = w.Close()
		return model.BlobRef{}, status.ErrProvider.Wrap(err)
	}
	if err = w.Close(); err != nil {
		if isPreconditionFailure(err) {
			return model.BlobRef{URI: uri}, nil
		}
		return model.BlobRef{}, status.ErrProvider.Wrap(err)
	}
	return model.BlobRef{URI: uri}, nil
}

func (g *gcs) GetByDigest(ctx context.Context, d digest.Digest) (io.ReadCloser, error) {
	obj, err := g.object(d)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		if err == gcsStorage.ErrObjectNotExist {
			return nil, status.ErrNotFound.WrapMessage(d.String())
		}
		return nil, status.ErrProvider.Wrap(err)
	}
	return r, nil
}

func isPreconditionFailure(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusPreconditionFailed
	}
	return false
}
