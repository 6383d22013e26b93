package matcher

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/cruciblehq/bundlegen/internal/catalog"
	"github.com/cruciblehq/bundlegen/internal/walker"
)

// Reports whether the image rootfs ships a copy of a library.
type Inventory interface {
	Contains(name string) bool
}

// Matching outcome for one library.
type Resolved struct {
	Name       string `json:"name"`
	Origin     Origin `json:"origin"`
	Tag        string `json:"version,omitempty"`    // Chosen API version tag; empty when unknown.
	Path       string `json:"path,omitempty"`       // Device path declared by the catalog.
	Unresolved bool   `json:"unresolved,omitempty"` // Library was missing from the catalog.
}

// Picks an origin for every library of the closure.
//
// The catalog may be nil when dependency walking is disabled; libraries are
// then treated as present on the device without version information. The
// inventory may be nil, in which case a library counts as present in the
// image only when the catalog lists image version tags for it.
//
// All libraries are examined before returning, so every missing device
// library is reported in one joined error.
func Resolve(closure *walker.Closure, cat walker.Lookuper, mode Mode, inv Inventory) (map[string]Resolved, error) {
	out := make(map[string]Resolved, len(closure.Libraries))
	var errs []error

	for _, name := range closure.Libraries {
		r, err := resolveOne(name, closure, cat, mode, inv)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Debug("library matched",
			"library", name,
			"origin", r.Origin,
			"version", r.Tag,
			"mode", mode,
		)
		out[name] = r
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Returns the resolved libraries sorted by name.
func Sorted(resolved map[string]Resolved) []Resolved {
	out := make([]Resolved, 0, len(resolved))
	for _, name := range slices.Sorted(maps.Keys(resolved)) {
		out = append(out, resolved[name])
	}
	return out
}

// Applies the mode to a single library.
func resolveOne(name string, closure *walker.Closure, cat walker.Lookuper, mode Mode, inv Inventory) (Resolved, error) {
	if closure.IsUnresolved(name) {
		return Resolved{Name: name, Origin: FromHost, Unresolved: true}, nil
	}

	rec, ok := lookup(cat, name)
	if !ok {
		rec = catalog.Record{Name: name, OnHost: true}
	}

	inImage := len(rec.ImageVersions) > 0 || (inv != nil && inv.Contains(name))
	missing := &MissingHostLibraryError{Library: name, Mode: mode}

	switch mode {
	case Host:
		if !rec.OnHost {
			return Resolved{}, missing
		}
		return fromHost(rec), nil

	case Image:
		if inImage {
			return fromImage(rec), nil
		}
		if !rec.OnHost {
			return Resolved{}, missing
		}
		return fromHost(rec), nil

	case Normal:
		switch {
		case !rec.OnHost && inImage:
			return fromImage(rec), nil
		case !rec.OnHost:
			return Resolved{}, missing
		case !inImage:
			return fromHost(rec), nil
		}
		origin, tag := newest(rec)
		return Resolved{Name: name, Origin: origin, Tag: tag, Path: rec.Path}, nil

	default:
		return Resolved{}, ErrInvalidMode
	}
}

func lookup(cat walker.Lookuper, name string) (catalog.Record, bool) {
	if cat == nil {
		return catalog.Record{}, false
	}
	return cat.Lookup(name)
}

func fromHost(rec catalog.Record) Resolved {
	return Resolved{
		Name:   rec.Name,
		Origin: FromHost,
		Tag:    catalog.MaxByFamily(rec.HostVersions).Best(),
		Path:   rec.Path,
	}
}

func fromImage(rec catalog.Record) Resolved {
	return Resolved{
		Name:   rec.Name,
		Origin: FromImage,
		Tag:    catalog.MaxByFamily(rec.ImageVersions).Best(),
		Path:   rec.Path,
	}
}

// Compares the image and device version tags of a library that both sides
// provide, returning the winning origin and its tag.
func newest(rec catalog.Record) (Origin, string) {
	img := catalog.MaxByFamily(rec.ImageVersions)
	host := catalog.MaxByFamily(rec.HostVersions)

	switch {
	case len(img) == 0 && len(host) == 0:
		return FromHost, ""
	case len(host) == 0:
		return FromImage, img.Best()
	case len(img) == 0:
		return FromHost, host.Best()
	}

	var common []string
	for _, f := range img.Families() {
		if _, ok := host[f]; ok {
			common = append(common, f)
		}
	}
	if len(common) == 0 {
		// Families differ, nothing to compare.
		return FromHost, host.Best()
	}

	var imageNewer, hostNewer string
	for _, f := range common {
		c, _ := catalog.Compare(img[f], host[f])
		if c > 0 && imageNewer == "" {
			imageNewer = f
		}
		if c < 0 && hostNewer == "" {
			hostNewer = f
		}
	}

	switch {
	case imageNewer != "" && hostNewer == "":
		return FromImage, img[imageNewer].Raw
	case hostNewer != "":
		return FromHost, host[hostNewer].Raw
	default:
		return FromHost, host[common[0]].Raw
	}
}
