package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/cruciblehq/bundlegen/internal/schema"
)

// A library as described by the catalog.
//
// Slices are sorted and free of duplicates. Records are shared between
// callers and must be treated as read-only.
type Record struct {
	Name          string   // Library name, usually the soname (e.g. "libEGL.so.1").
	Path          string   // Absolute path of the library on the device, if declared.
	OnHost        bool     // Whether the device provides the library.
	DependsOn     []string // Libraries this one links against.
	ImageVersions []string // API version tags of the copy in the image.
	HostVersions  []string // API version tags of the copy on the device.
}

// Catalog entry as it appears in the document.
type entry struct {
	DependsOn     []string `json:"dependsOn"`
	ImageVersions []string `json:"imageVersions"`
	HostVersions  []string `json:"hostVersions"`
	Path          string   `json:"path"`
	OnHost        *bool    `json:"onHost"`
}

// Read-only set of library records keyed by name.
type Catalog struct {
	records map[string]Record
	names   []string
}

// Reads and validates the catalog at path.
//
// Returns an error wrapping [ErrCatalogNotFound] when the file does not
// exist, and [ErrMalformedCatalog] when it cannot be parsed, repeats a
// library name or does not match the catalog schema.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, path)
		}
		return nil, err
	}

	c, err := Parse(path, data)
	if err != nil {
		return nil, err
	}

	slog.Debug("library catalog loaded", "path", path, "libraries", c.Len())
	return c, nil
}

// Builds a catalog from the document in data. The name is only used in
// error messages.
func Parse(name string, data []byte) (*Catalog, error) {
	if err := checkDuplicateKeys(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedCatalog, name, err)
	}

	entries, err := schema.Decode[map[string]entry](schema.Catalog, name, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
	}

	c := &Catalog{records: make(map[string]Record, len(*entries))}
	for libName, e := range *entries {
		if libName == "" {
			return nil, fmt.Errorf("%w: %s: empty library name", ErrMalformedCatalog, name)
		}
		c.records[libName] = newRecord(libName, e)
		c.names = append(c.names, libName)
	}
	slices.Sort(c.names)

	return c, nil
}

// Creates a catalog directly from records. Later records replace earlier ones
// with the same name.
func New(records ...Record) *Catalog {
	c := &Catalog{records: make(map[string]Record, len(records))}
	for _, r := range records {
		r.DependsOn = normalize(r.DependsOn)
		r.ImageVersions = normalize(r.ImageVersions)
		r.HostVersions = normalize(r.HostVersions)
		if _, ok := c.records[r.Name]; !ok {
			c.names = append(c.names, r.Name)
		}
		c.records[r.Name] = r
	}
	slices.Sort(c.names)
	return c
}

// Returns the record for the named library.
func (c *Catalog) Lookup(name string) (Record, bool) {
	if c == nil {
		return Record{}, false
	}
	r, ok := c.records[name]
	return r, ok
}

// Returns the library names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.names)
}

// Returns the number of libraries in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

func newRecord(name string, e entry) Record {
	onHost := true
	if e.OnHost != nil {
		onHost = *e.OnHost
	}
	return Record{
		Name:          name,
		Path:          e.Path,
		OnHost:        onHost,
		DependsOn:     normalize(e.DependsOn),
		ImageVersions: normalize(e.ImageVersions),
		HostVersions:  normalize(e.HostVersions),
	}
}

// Returns a sorted copy of s without duplicates or empty strings.
func normalize(s []string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Rejects a document whose top-level object repeats a key. encoding/json and
// CUE both accept repeated keys (last wins, or unification), which would hide
// conflicting catalog entries.
func checkDuplicateKeys(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("catalog must be a JSON object")
	}

	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		if seen[key] {
			return fmt.Errorf("duplicate library %q", key)
		}
		seen[key] = true

		// Skip the value without interpreting it; the schema validates it.
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
