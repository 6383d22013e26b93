package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cruciblehq/bundlegen/internal/paths"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Writes the runtime configuration and the plan into the bundle at dir.
//
// The plan records the digest of the configuration, which is also returned.
// Each file is written to a temporary file first and renamed into place, so
// readers never see a partial file.
func Write(dir string, spec *specs.Spec, plan *Plan) (digest.Digest, error) {
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	config, err := marshal(spec)
	if err != nil {
		return "", err
	}
	dgst := digest.FromBytes(config)
	plan.Config = dgst

	planData, err := marshal(plan)
	if err != nil {
		return "", err
	}

	if err := writeFile(paths.Config(dir), config); err != nil {
		return "", err
	}
	if err := writeFile(paths.Plan(dir), planData); err != nil {
		return "", err
	}

	return dgst, nil
}

// Encodes v as indented JSON with a trailing newline.
func marshal(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Replaces the file at path with data.
func writeFile(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err = os.Chmod(tmp, paths.DefaultFileMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	return nil
}
