package registry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/model"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
)

var manifestJSON = jsoniter.Config{
	SortMapKeys:   true,
	IndentionStep: 2,
}.Froze()

// BuildManifest assembles the OCI image manifest of a bundle version:
// the canonical index bytes as config, one layer descriptor per
// OCI-stored file, each carrying the full project-relative POSIX path in
// the standard title annotation.
//
// Basenames are not enough: src/model.py and lib/model.py must survive a
// round trip as distinct layers.
func BuildManifest(index *model.BundleIndex, created time.Time) ([]byte, error) {
	configBytes, err := index.CanonicalBytes()
	if err != nil {
		return nil, err
	}

	var layers []ocispec.Descriptor
	for _, pth := range sortedPaths(index.Files) {
		e := index.Files[pth]
		if e.Storage != model.StorageOCI {
			continue
		}
		layers = append(layers, ocispec.Descriptor{
			MediaType: model.FileLayerMediaType,
			Digest:    e.Digest,
			Size:      e.Size,
			Annotations: map[string]string{
				ocispec.AnnotationTitle: e.Path,
			},
		})
	}

	manifest := ocispec.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ocispec.MediaTypeImageManifest,
		ArtifactType: model.BundleArtifactType,
		Config: ocispec.Descriptor{
			MediaType: model.BundleIndexMediaType,
			Digest:    digest.FromBytes(configBytes),
			Size:      int64(len(configBytes)),
		},
		Layers: layers,
		Annotations: map[string]string{
			ocispec.AnnotationCreated: created.UTC().Format(time.RFC3339),
			"vnd.modelops.bundle.tool": index.Tool.Name + "/" + index.Tool.Version,
		},
	}
	if manifest.Layers == nil {
		manifest.Layers = []ocispec.Descriptor{}
	}
	return manifestJSON.Marshal(&manifest)
}

// ParseManifest decodes manifest bytes, rejecting manifest indexes and
// lists: a bundle reference names a single artifact.
func ParseManifest(raw []byte) (Manifest, error) {
	// sniff for index/list before committing to the manifest shape
	var probe struct {
		MediaType string            `json:"mediaType"`
		Manifests []jsoniter.RawMessage `json:"manifests"`
	}
	if err := manifestJSON.Unmarshal(raw, &probe); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	if len(probe.Manifests) > 0 ||
		probe.MediaType == ocispec.MediaTypeImageIndex ||
		probe.MediaType == "application/vnd.docker.distribution.manifest.list.v2+json" {
		return Manifest{}, status.ErrUnsupportedArtifact.WrapMessage(probe.MediaType)
	}

	var m ocispec.Manifest
	if err := manifestJSON.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	return Manifest{Raw: raw, Config: m.Config, Layers: m.Layers}, nil
}

// FetchIndex retrieves and parses the bundle index referenced by a
// manifest digest. The config media type is the discriminator: anything
// else is not a bundle produced by this tool.
func FetchIndex(ctx context.Context, adapter Adapter, manifestDigest digest.Digest) (*model.BundleIndex, error) {
	m, err := adapter.GetManifest(ctx, manifestDigest)
	if err != nil {
		return nil, err
	}
	if m.Config.MediaType != model.BundleIndexMediaType {
		return nil, status.ErrMissingIndex.WrapMessage(string(manifestDigest))
	}
	rdr, err := adapter.GetBlob(ctx, m.Config.Digest)
	if err != nil {
		return nil, err
	}
	defer rdr.Close()
	raw, err := io.ReadAll(rdr)
	if err != nil {
		return nil, err
	}
	return model.ParseBundleIndex(raw)
}

func sortedPaths(files map[string]model.FileEntry) []string {
	out := make([]string, 0, len(files))
	for pth := range files {
		out = append(out, pth)
	}
	sort.Strings(out)
	return out
}
