// Package manifest loads and models asset manifests: the ordered collection
// of file and container image assets, each with one or more named
// destinations, that a deployment needs published before it can proceed.
package manifest

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/input-output-hk/catalyst-forge-libs/fs"
	"github.com/input-output-hk/catalyst-forge-libs/fs/billy"

	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
)

// DefaultFilename is the manifest filename assumed when loading a directory.
const DefaultFilename = "assets.json"

// Manifest is an ordered collection of publishable entries, loaded from a
// JSON document produced by synthesis tooling.
type Manifest struct {
	// Version is the schema version string recorded in the document
	Version string

	// Directory is the base path that relative asset sources resolve against
	Directory string

	entries []*Entry
}

// document is the on-disk manifest schema.
type document struct {
	Version      string                `json:"version"`
	Files        map[string]fileAsset  `json:"files,omitempty"`
	DockerImages map[string]imageAsset `json:"dockerImages,omitempty"`
}

type fileAsset struct {
	Source       FileSource                 `json:"source"`
	Destinations map[string]FileDestination `json:"destinations"`
}

type imageAsset struct {
	Source       ImageSource                 `json:"source"`
	Destinations map[string]ImageDestination `json:"destinations"`
}

// FromPath loads a manifest from the OS filesystem. Path may name the
// manifest file itself or a directory containing one under DefaultFilename.
func FromPath(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, asseterrors.NewError("manifest", err)
	}
	return FromFS(billy.NewOSFS("/"), abs)
}

// FromFS loads a manifest from the given filesystem. Path may name the
// manifest file itself or a directory containing one under DefaultFilename.
func FromFS(fsys fs.Filesystem, path string) (*Manifest, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, asseterrors.NewError("manifest", asseterrors.ErrManifestNotFound).
			WithAssetID(path)
	}
	file := path
	if info.IsDir() {
		file = filepath.Join(path, DefaultFilename)
	}

	raw, err := fsys.ReadFile(file)
	if err != nil {
		return nil, asseterrors.NewError("manifest", asseterrors.ErrManifestNotFound).
			WithAssetID(file)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, asseterrors.NewError("manifest", asseterrors.ErrManifestInvalid).
			WithAssetID(file)
	}

	return &Manifest{
		Version:   doc.Version,
		Directory: filepath.Dir(file),
		entries:   doc.entries(),
	}, nil
}

// entries flattens the document into one entry per asset/destination pair.
// Map iteration order is not stable, so entries are sorted by identifier to
// keep publishing order deterministic.
func (d *document) entries() []*Entry {
	var out []*Entry

	for assetID, asset := range d.Files {
		for destID, dest := range asset.Destinations {
			out = append(out, &Entry{
				ID:   EntryID{AssetID: assetID, DestinationID: destID},
				Kind: KindFile,
				File: &FileEntry{Source: asset.Source, Destination: dest},
			})
		}
	}
	for assetID, asset := range d.DockerImages {
		for destID, dest := range asset.Destinations {
			out = append(out, &Entry{
				ID:    EntryID{AssetID: assetID, DestinationID: destID},
				Kind:  KindContainerImage,
				Image: &ImageEntry{Source: asset.Source, Destination: dest},
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == KindFile
		}
		if out[i].ID.AssetID != out[j].ID.AssetID {
			return out[i].ID.AssetID < out[j].ID.AssetID
		}
		return out[i].ID.DestinationID < out[j].ID.DestinationID
	})
	return out
}

// Entries returns the manifest entries in publishing order. The returned
// slice is shared; callers must treat it as read-only.
func (m *Manifest) Entries() []*Entry {
	return m.entries
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Select returns a manifest containing only the entries matched by at least
// one of the given patterns. With no patterns the manifest is returned
// unchanged.
func (m *Manifest) Select(patterns []DestinationPattern) *Manifest {
	if len(patterns) == 0 {
		return m
	}
	var kept []*Entry
	for _, entry := range m.entries {
		for _, pattern := range patterns {
			if pattern.Matches(entry.ID) {
				kept = append(kept, entry)
				break
			}
		}
	}
	return &Manifest{
		Version:   m.Version,
		Directory: m.Directory,
		entries:   kept,
	}
}
