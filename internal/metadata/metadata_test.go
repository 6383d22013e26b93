package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wayland = `{
	"id": "com.example.wayland-egl-test",
	"version": "1.0.0",
	"entryPoint": "/usr/bin/wayland-egl-test",
	"args": ["--fullscreen"],
	"env": ["LANG=C"],
	"gfxLibs": ["libEGL.so.1", "libGLESv2.so.2", "libEGL.so.1"],
	"pluginDependencies": ["libwesteros.so.0"],
	"graphics": true,
	"network": {"type": "nat"},
	"resources": {"ram": "128M"},
	"type": "application/vnd.rdk-app.dac.native",
	"storage": {"persistent": [{"size": "1M", "path": "/home/private"}]}
}`

func TestParse(t *testing.T) {
	app, err := Parse("wayland.json", []byte(wayland))
	require.NoError(t, err)

	assert.Equal(t, "com.example.wayland-egl-test", app.ID)
	assert.Equal(t, "/usr/bin/wayland-egl-test", app.EntryPoint)
	assert.Equal(t, []string{"--fullscreen"}, app.Args)
	assert.Equal(t, "nat", app.NetworkType())
	assert.Equal(t, int64(128*1024*1024), app.RAM())
	assert.True(t, app.NeedsGraphics())
	assert.Equal(t, "wayland.json", app.Source())
	assert.Equal(t, []string{"libEGL.so.1", "libGLESv2.so.2", "libwesteros.so.0"}, app.Roots())

	require.Len(t, app.Extra, 2)
	assert.JSONEq(t, `"application/vnd.rdk-app.dac.native"`, string(app.Extra["type"]))
	assert.Contains(t, app.Extra, "storage")
}

func TestParseMinimal(t *testing.T) {
	app, err := Parse("min.json", []byte(`{"entryPoint": "/bin/app"}`))
	require.NoError(t, err)

	assert.Empty(t, app.Roots())
	assert.Empty(t, app.Extra)
	assert.Empty(t, app.NetworkType())
	assert.Zero(t, app.RAM())
	assert.False(t, app.NeedsGraphics())
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"syntax", `{"entryPoint": `},
		{"wrong type", `{"gfxLibs": "libEGL.so.1"}`},
		{"network type", `{"network": {"type": "bridge"}}`},
		{"relative workdir", `{"workingDir": "home"}`},
		{"bad ram", `{"resources": {"ram": "plenty"}}`},
		{"mount without destination", `{"mounts": [{"source": "/tmp"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.json", []byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidMetadata)
			assert.True(t, errdefs.IsInvalidArgument(err))
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, ErrNoMetadata)
}

func TestFromRootfs(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := FromRootfs(fs)
	assert.ErrorIs(t, err, ErrNoMetadata)

	require.NoError(t, afero.WriteFile(fs, RootfsFile, []byte(wayland), 0o644))
	app, err := FromRootfs(fs)
	require.NoError(t, err)
	assert.Equal(t, RootfsFile, app.Source())
}

func TestSelect(t *testing.T) {
	external := filepath.Join(t.TempDir(), "app.json")
	require.NoError(t, os.WriteFile(external, []byte(`{"id": "external", "entryPoint": "/bin/ext"}`), 0o644))
	embedded := []byte(`{"id": "embedded", "entryPoint": "/bin/emb"}`)

	t.Run("embedded only", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, RootfsFile, embedded, 0o644))

		app, err := Select("", fs)
		require.NoError(t, err)
		assert.Equal(t, "embedded", app.ID)

		exists, err := afero.Exists(fs, RootfsFile)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("external wins", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, RootfsFile, embedded, 0o644))

		app, err := Select(external, fs)
		require.NoError(t, err)
		assert.Equal(t, "external", app.ID)

		exists, err := afero.Exists(fs, RootfsFile)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("external without rootfs", func(t *testing.T) {
		app, err := Select(external, nil)
		require.NoError(t, err)
		assert.Equal(t, "external", app.ID)
	})

	t.Run("none", func(t *testing.T) {
		_, err := Select("", afero.NewMemMapFs())
		assert.ErrorIs(t, err, ErrNoMetadata)
		assert.True(t, errdefs.IsNotFound(err))
	})

	t.Run("invalid embedded is kept", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, RootfsFile, []byte(`{"gfxLibs": 1}`), 0o644))

		_, err := Select("", fs)
		assert.ErrorIs(t, err, ErrInvalidMetadata)
	})
}
