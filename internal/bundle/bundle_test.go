package bundle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/bundlegen/internal/catalog"
	"github.com/cruciblehq/bundlegen/internal/compat"
	"github.com/cruciblehq/bundlegen/internal/matcher"
	"github.com/cruciblehq/bundlegen/internal/paths"
	"github.com/cruciblehq/bundlegen/internal/walker"
	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const libs = `{
	"libEGL.so.1": {"dependsOn": ["libc.so.6", "libgbm.so.1"], "path": "/usr/lib/libEGL.so.1"},
	"libgbm.so.1": {"dependsOn": ["libc.so.6", "libdrm.so.2"]},
	"libc.so.6":   {"imageVersions": ["GLIBC_2.17"], "hostVersions": ["GLIBC_2.27"]},
	"libwesteros.so.0": {"dependsOn": ["libEGL.so.1"]}
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rpi3_libs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readConfig(t *testing.T, dir string) (*specs.Spec, []byte) {
	t.Helper()
	b, err := os.ReadFile(paths.Config(dir))
	require.NoError(t, err)
	var spec specs.Spec
	require.NoError(t, json.Unmarshal(b, &spec))
	return &spec, b
}

func TestRun(t *testing.T) {
	out := t.TempDir()
	rootfs := testRootfs(t, "/lib/libc.so.6", "/usr/lib/libgbm.so.1")

	result, err := Run(context.Background(), Options{
		Platform:          testPlatform(t),
		App:               testApp(t, `{"id": "com.example.app", "entryPoint": "/bin/app", "gfxLibs": ["libEGL.so.1"], "pluginDependencies": ["libwesteros.so.0"]}`),
		Rootfs:            rootfs,
		Output:            out,
		DependencyWalking: true,
		Catalog:           writeCatalog(t, libs),
		Mode:              matcher.Normal,
		Workers:           4,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"libEGL.so.1", "libwesteros.so.0"}, result.Plan.Roots)

	byName := make(map[string]matcher.Resolved)
	for _, lib := range result.Plan.Libraries {
		byName[lib.Name] = lib
	}
	assert.Len(t, byName, 5)
	assert.Equal(t, matcher.FromHost, byName["libc.so.6"].Origin)
	assert.Equal(t, "GLIBC_2.27", byName["libc.so.6"].Tag)
	assert.True(t, byName["libdrm.so.2"].Unresolved)

	require.Len(t, result.Warnings, 1)
	var unresolved walker.UnresolvedDependencyWarning
	require.ErrorAs(t, result.Warnings[0], &unresolved)
	assert.Equal(t, "libdrm.so.2", unresolved.Dependency)
	assert.Equal(t, "libgbm.so.1", unresolved.RequiredBy)

	spec, raw := readConfig(t, out)
	assert.Equal(t, digest.FromBytes(raw), result.Digest)
	assert.Equal(t, result.Digest, result.Plan.Config)
	assert.Equal(t, paths.Config(out), result.Config)

	for _, dest := range []string{"/lib/libc.so.6", "/lib/libdrm.so.2", "/lib/libgbm.so.1", "/usr/lib/libEGL.so.1"} {
		_, ok := findMount(spec.Mounts, dest)
		assert.True(t, ok, dest)
	}
	assert.Equal(t, []string{"/lib/libc.so.6", "/usr/lib/libgbm.so.1"}, result.Plan.Removed)

	b, err := os.ReadFile(paths.Plan(out))
	require.NoError(t, err)
	var plan Plan
	require.NoError(t, json.Unmarshal(b, &plan))
	assert.Equal(t, result.Digest, plan.Config)
	assert.Equal(t, matcher.Normal, plan.Mode)
}

func TestRunModes(t *testing.T) {
	cat := writeCatalog(t, `{"libc.so.6": {"imageVersions": ["GLIBC_2.17"], "hostVersions": ["GLIBC_2.27"]}}`)

	tests := []struct {
		mode   matcher.Mode
		origin matcher.Origin
	}{
		{matcher.Normal, matcher.FromHost},
		{matcher.Image, matcher.FromImage},
		{matcher.Host, matcher.FromHost},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			p := testPlatform(t)
			p.PluginLibraries = append(p.PluginLibraries, "libc.so.6")

			result, err := Run(context.Background(), Options{
				Platform:          p,
				App:               testApp(t, `{"entryPoint": "/bin/app", "pluginDependencies": ["libc.so.6"]}`),
				Output:            t.TempDir(),
				DependencyWalking: true,
				Catalog:           cat,
				Mode:              tt.mode,
			})
			require.NoError(t, err)
			require.Len(t, result.Plan.Libraries, 1)
			assert.Equal(t, tt.origin, result.Plan.Libraries[0].Origin)
		})
	}
}

func TestRunIncompatible(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bundle")
	rootfs := testRootfs(t, "/lib/libc.so.6")

	_, err := Run(context.Background(), Options{
		Platform:          testPlatform(t),
		App:               testApp(t, `{"entryPoint": "/bin/app", "gfxLibs": ["libvulkan.so.1"]}`),
		Rootfs:            rootfs,
		Output:            out,
		DependencyWalking: true,
		Catalog:           filepath.Join(t.TempDir(), "absent.json"),
	})

	var incompatible *compat.IncompatibleError
	require.ErrorAs(t, err, &incompatible)
	assert.True(t, errdefs.IsFailedPrecondition(err))

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "nothing may be written")
	assert.True(t, rootfs.Contains("libc.so.6"))
}

func TestRunCatalogNotFound(t *testing.T) {
	out := t.TempDir()

	result, err := Run(context.Background(), Options{
		Platform:          testPlatform(t),
		App:               testApp(t, `{"entryPoint": "/bin/app", "gfxLibs": ["libEGL.so.1", "libGLESv2.so.2"]}`),
		Output:            out,
		DependencyWalking: true,
		Catalog:           filepath.Join(t.TempDir(), "absent.json"),
	})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.ErrorIs(t, result.Warnings[0], catalog.ErrCatalogNotFound)
	assert.Equal(t, []string{"libEGL.so.1", "libGLESv2.so.2"}, result.Plan.Roots)
	assert.Len(t, result.Plan.HostLibraries(), 2)
	assert.Empty(t, result.Plan.Catalog)
}

func TestRunMalformedCatalog(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Platform:          testPlatform(t),
		App:               testApp(t, `{"entryPoint": "/bin/app", "gfxLibs": ["libEGL.so.1"]}`),
		Output:            t.TempDir(),
		DependencyWalking: true,
		Catalog:           writeCatalog(t, `{"libEGL.so.1": {}, "libEGL.so.1": {}}`),
	})
	assert.ErrorIs(t, err, catalog.ErrMalformedCatalog)
}

func TestRunMissingHostLibrary(t *testing.T) {
	out := t.TempDir()

	_, err := Run(context.Background(), Options{
		Platform:          testPlatform(t),
		App:               testApp(t, `{"entryPoint": "/bin/app", "gfxLibs": ["libEGL.so.1"]}`),
		Output:            out,
		DependencyWalking: true,
		Catalog:           writeCatalog(t, `{"libEGL.so.1": {"onHost": false}}`),
		Mode:              matcher.Host,
	})

	var missing *matcher.MissingHostLibraryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "libEGL.so.1", missing.Library)

	_, statErr := os.Stat(paths.Config(out))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunWalkingDisabled(t *testing.T) {
	result, err := Run(context.Background(), Options{
		Platform: testPlatform(t),
		App:      testApp(t, `{"entryPoint": "/bin/app", "gfxLibs": ["libEGL.so.1"]}`),
		Output:   t.TempDir(),
		Catalog:  writeCatalog(t, libs),
	})
	require.NoError(t, err)

	assert.Empty(t, result.Warnings)
	require.Len(t, result.Plan.Libraries, 1)
	assert.Equal(t, "libEGL.so.1", result.Plan.Libraries[0].Name)
	assert.False(t, result.Plan.DependencyWalking)
}
