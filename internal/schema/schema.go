package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/yaml"
)

//go:embed bundlegen.cue
var source string

// Embedded schema compiled into its own context.
type compiled struct {
	ctx    *cue.Context
	schema cue.Value
}

// Compiles the embedded schema on first use.
var load = sync.OnceValues(func() (*compiled, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(source, cue.Filename("bundlegen.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return &compiled{ctx: ctx, schema: schema}, nil
})

// Guards the shared context, which does not support concurrent use.
var mu sync.Mutex

// Names a definition in the embedded schema.
type Definition string

const (
	Platform    Definition = "#Platform"
	AppMetadata Definition = "#AppMetadata"
	Catalog     Definition = "#Catalog"
)

// Validates data against def and decodes the unified value into a new T.
//
// The filename is used for error messages and to select the input format:
// ".yaml" and ".yml" are read as YAML, anything else as JSON. Validation
// requires all fields to be concrete, so required fields without a value or
// default are rejected.
func Decode[T any](def Definition, filename string, data []byte) (*T, error) {
	c, err := load()
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	root := c.schema.LookupPath(cue.ParsePath(string(def)))
	if !root.Exists() {
		return nil, fmt.Errorf("%w: definition %s not found", ErrSchema, def)
	}

	value, err := compile(c.ctx, filename, data)
	if err != nil {
		return nil, err
	}

	unified := root.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, format(err, filename)
	}

	// The JSON round trip honours encoding/json tags and custom unmarshalers
	// on the target, which the runtime-spec types rely on.
	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, format(err, filename)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, filename, err)
	}

	return &out, nil
}

// Compiles the document into a CUE value according to its extension.
func compile(ctx *cue.Context, filename string, data []byte) (cue.Value, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		file, err := yaml.Extract(filename, data)
		if err != nil {
			return cue.Value{}, fmt.Errorf("%w: %s: %w", ErrInvalidDocument, filename, err)
		}
		v := ctx.BuildFile(file)
		if err := v.Err(); err != nil {
			return cue.Value{}, format(err, filename)
		}
		return v, nil
	default:
		v := ctx.CompileBytes(data, cue.Filename(filename))
		if err := v.Err(); err != nil {
			return cue.Value{}, format(err, filename)
		}
		return v, nil
	}
}

// Flattens a CUE error list into one error prefixed with the file name, one
// line per failing path.
func format(err error, filename string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDocument, filename, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		path := strings.Join(cueerrors.Path(e), ".")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path != "" {
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}

	if len(lines) == 1 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, filename, lines[0])
	}
	return fmt.Errorf("%w: %s:\n  %s", ErrInvalidDocument, filename, strings.Join(lines, "\n  "))
}
