package image

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"

	"github.com/containerd/platforms"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/spf13/afero"
)

// Docker media types still found in layouts converted from registries.
const (
	mediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	mediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
)

// Bounds nested index resolution.
const maxIndexDepth = 4

// OCI image layout directory.
type Layout struct {
	fs afero.Fs
}

// Opens the image layout rooted at dir.
func OpenLayout(dir string) (*Layout, error) {
	return NewLayout(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// Creates a layout reading from fsys, whose root is the layout directory.
//
// Returns an error wrapping [ErrInvalidLayout] when the "oci-layout" marker
// is missing or names an unsupported version.
func NewLayout(fsys afero.Fs) (*Layout, error) {
	b, err := afero.ReadFile(fsys, ocispec.ImageLayoutFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}

	var marker ocispec.ImageLayout
	if err := json.Unmarshal(b, &marker); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLayout, ocispec.ImageLayoutFile, err)
	}
	if marker.Version != ocispec.ImageLayoutVersion {
		return nil, fmt.Errorf("%w: unsupported layout version %q", ErrInvalidLayout, marker.Version)
	}

	return &Layout{fs: fsys}, nil
}

// Returns the image configuration for the given platform.
//
// Indexes are walked until a manifest matching p is found. Entries that
// declare no platform are probed through their image config. When p is nil
// the first manifest is used.
func (l *Layout) Config(p *ocispec.Platform) (*ocispec.Image, error) {
	b, err := afero.ReadFile(l.fs, ocispec.ImageIndexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}

	var root ocispec.Index
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLayout, ocispec.ImageIndexFile, err)
	}

	var matcher platforms.Matcher
	if p != nil {
		matcher = platforms.Only(*p)
	}

	desc, err := l.resolve(root, matcher, 0)
	if err != nil {
		return nil, err
	}

	manifest, err := l.readManifest(desc)
	if err != nil {
		return nil, err
	}

	img, err := l.readConfig(manifest.Config)
	if err != nil {
		return nil, err
	}

	slog.Debug("image config loaded",
		"manifest", desc.Digest,
		"platform", platforms.Format(Platform(&img)),
	)
	return &img, nil
}

// Returns the platform an image config declares.
func Platform(img *ocispec.Image) ocispec.Platform {
	return ocispec.Platform{
		OS:           img.OS,
		Architecture: img.Architecture,
		Variant:      img.Variant,
	}
}

// Picks a manifest descriptor out of an index, descending into nested
// indexes.
func (l *Layout) resolve(idx ocispec.Index, matcher platforms.Matcher, depth int) (ocispec.Descriptor, error) {
	if depth > maxIndexDepth {
		return ocispec.Descriptor{}, fmt.Errorf("%w: indexes nested deeper than %d", ErrInvalidLayout, maxIndexDepth)
	}
	if len(idx.Manifests) == 0 {
		return ocispec.Descriptor{}, ErrEmptyIndex
	}

	for _, m := range l.candidates(idx, matcher) {
		switch {
		case isManifest(m.MediaType):
			return m, nil
		case isIndex(m.MediaType):
			child, err := l.readIndex(m)
			if err != nil {
				return ocispec.Descriptor{}, err
			}
			desc, err := l.resolve(child, matcher, depth+1)
			if errors.Is(err, ErrNoMatchingManifest) || errors.Is(err, ErrEmptyIndex) {
				continue
			}
			return desc, err
		}
	}

	return ocispec.Descriptor{}, ErrNoMatchingManifest
}

// Returns the index entries worth trying, in order.
//
// Entries with a matching platform come first, followed by entries without
// platform whose image config matches. Without a matcher every entry is a
// candidate.
func (l *Layout) candidates(idx ocispec.Index, matcher platforms.Matcher) []ocispec.Descriptor {
	if matcher == nil {
		return idx.Manifests
	}

	var out []ocispec.Descriptor
	for _, m := range idx.Manifests {
		if m.Platform != nil && matcher.Match(*m.Platform) {
			out = append(out, m)
		}
	}
	for _, m := range idx.Manifests {
		switch {
		case m.Platform != nil:
		case isIndex(m.MediaType):
			out = append(out, m)
		case isManifest(m.MediaType):
			if p, ok := l.configPlatform(m); ok && matcher.Match(p) {
				out = append(out, m)
			}
		}
	}
	return out
}

// Reads the platform declared by the config of a manifest. Returns false
// when either blob cannot be read.
func (l *Layout) configPlatform(desc ocispec.Descriptor) (ocispec.Platform, bool) {
	manifest, err := l.readManifest(desc)
	if err != nil {
		return ocispec.Platform{}, false
	}
	img, err := l.readConfig(manifest.Config)
	if err != nil {
		return ocispec.Platform{}, false
	}
	return Platform(&img), true
}

func (l *Layout) readIndex(desc ocispec.Descriptor) (ocispec.Index, error) {
	var idx ocispec.Index
	return idx, l.readJSON(desc, &idx)
}

func (l *Layout) readManifest(desc ocispec.Descriptor) (ocispec.Manifest, error) {
	var m ocispec.Manifest
	return m, l.readJSON(desc, &m)
}

func (l *Layout) readConfig(desc ocispec.Descriptor) (ocispec.Image, error) {
	var img ocispec.Image
	return img, l.readJSON(desc, &img)
}

func (l *Layout) readJSON(desc ocispec.Descriptor, v any) error {
	b, err := l.readBlob(desc)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: blob %s: %w", ErrInvalidLayout, desc.Digest, err)
	}
	return nil
}

// Reads a blob and verifies its size and digest.
func (l *Layout) readBlob(desc ocispec.Descriptor) ([]byte, error) {
	if err := desc.Digest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}

	p := blobPath(desc.Digest)
	f, err := l.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing blob %s", ErrInvalidLayout, desc.Digest)
		}
		return nil, err
	}
	defer f.Close()

	verifier := desc.Digest.Verifier()
	var buf bytes.Buffer

	// Read one byte past the declared size to detect oversized blobs.
	n, err := io.Copy(io.MultiWriter(&buf, verifier), io.LimitReader(f, desc.Size+1))
	if err != nil {
		return nil, err
	}
	if n != desc.Size {
		return nil, fmt.Errorf("%w: %s: size %d, expected %d", ErrBlobCorrupt, desc.Digest, n, desc.Size)
	}
	if !verifier.Verified() {
		return nil, fmt.Errorf("%w: %s: digest mismatch", ErrBlobCorrupt, desc.Digest)
	}

	return buf.Bytes(), nil
}

// Returns the location of a blob inside the layout.
func blobPath(d digest.Digest) string {
	return path.Join(ocispec.ImageBlobsDir, d.Algorithm().String(), d.Encoded())
}

func isIndex(mediaType string) bool {
	return mediaType == ocispec.MediaTypeImageIndex || mediaType == mediaTypeDockerManifestList
}

func isManifest(mediaType string) bool {
	return mediaType == ocispec.MediaTypeImageManifest || mediaType == mediaTypeDockerManifest
}
