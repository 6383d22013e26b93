package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/bundlegen/internal/catalog"
	"github.com/cruciblehq/bundlegen/internal/walker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Image rootfs contents for tests.
type inventory map[string]bool

func (i inventory) Contains(name string) bool { return i[name] }

func match(t *testing.T, rec catalog.Record, mode Mode, inv Inventory) (Resolved, error) {
	t.Helper()
	cat := catalog.New(rec)
	res, err := Resolve(walker.Roots([]string{rec.Name}), cat, mode, inv)
	if err != nil {
		return Resolved{}, err
	}
	return res[rec.Name], nil
}

func TestModeCases(t *testing.T) {
	glibc := catalog.Record{
		Name:          "libc.so.6",
		OnHost:        true,
		ImageVersions: []string{"GLIBC_2.17"},
		HostVersions:  []string{"GLIBC_2.27"},
	}
	empty := catalog.Record{Name: "libfoo.so.1", OnHost: true}

	tests := []struct {
		name   string
		rec    catalog.Record
		mode   Mode
		origin Origin
		tag    string
	}{
		{"normal prefers newer host", glibc, Normal, FromHost, "GLIBC_2.27"},
		{"image prefers image copy", glibc, Image, FromImage, "GLIBC_2.17"},
		{"host ignores versions", glibc, Host, FromHost, "GLIBC_2.27"},
		{"normal without versions uses host", empty, Normal, FromHost, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := match(t, tt.rec, tt.mode, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.origin, r.Origin)
			assert.Equal(t, tt.tag, r.Tag)
		})
	}
}

func TestNormalVersionComparison(t *testing.T) {
	tests := []struct {
		name   string
		image  []string
		host   []string
		origin Origin
		tag    string
	}{
		{"newer image", []string{"GLIBC_2.4", "GLIBC_2.28"}, []string{"GLIBC_2.27"}, FromImage, "GLIBC_2.28"},
		{"numeric not lexical", []string{"GLIBC_2.9"}, []string{"GLIBC_2.10"}, FromHost, "GLIBC_2.10"},
		{"tie prefers host", []string{"GLIBC_2.27"}, []string{"GLIBC_2.27"}, FromHost, "GLIBC_2.27"},
		{"mismatched families prefer host", []string{"LIBFOO_9.0"}, []string{"GLIBC_2.4"}, FromHost, "GLIBC_2.4"},
		{"only image has versions", []string{"GLIBC_2.4"}, nil, FromImage, "GLIBC_2.4"},
		{"only host has versions", []string{"GLIBC_PRIVATE"}, []string{"GLIBC_2.4"}, FromHost, "GLIBC_2.4"},
		{"image newer in every common family", []string{"GLIBC_2.30", "GLIBCXX_3.4.30"}, []string{"GLIBC_2.27", "GLIBCXX_3.4.21"}, FromImage, "GLIBC_2.30"},
		{"conflicting families prefer host", []string{"GLIBC_2.30", "GLIBCXX_3.4.9"}, []string{"GLIBC_2.27", "GLIBCXX_3.4.21"}, FromHost, "GLIBCXX_3.4.21"},
		{"newer in one family equal in other", []string{"GLIBC_2.27", "GLIBCXX_3.4.30"}, []string{"GLIBC_2.27", "GLIBCXX_3.4.21"}, FromImage, "GLIBCXX_3.4.30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := catalog.Record{Name: "lib.so", OnHost: true, ImageVersions: tt.image, HostVersions: tt.host}
			r, err := match(t, rec, Normal, inventory{"lib.so": true})
			require.NoError(t, err)
			assert.Equal(t, tt.origin, r.Origin)
			assert.Equal(t, tt.tag, r.Tag)
		})
	}
}

func TestImagePresenceFromInventory(t *testing.T) {
	rec := catalog.Record{Name: "libz.so.1", OnHost: true, HostVersions: []string{"ZLIB_1.2.9"}}

	r, err := match(t, rec, Image, inventory{"libz.so.1": true})
	require.NoError(t, err)
	assert.Equal(t, FromImage, r.Origin)

	r, err = match(t, rec, Image, inventory{})
	require.NoError(t, err)
	assert.Equal(t, FromHost, r.Origin)
	assert.Equal(t, "ZLIB_1.2.9", r.Tag)
}

func TestMissingHostLibrary(t *testing.T) {
	absent := catalog.Record{Name: "libgbm.so.1", OnHost: false, ImageVersions: []string{"GBM_1.0"}}
	absentNoImage := catalog.Record{Name: "libgbm.so.1", OnHost: false}

	t.Run("host mode fails", func(t *testing.T) {
		_, err := match(t, absent, Host, nil)
		var missing *MissingHostLibraryError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "libgbm.so.1", missing.Library)
		assert.Equal(t, Host, missing.Mode)
		assert.True(t, errdefs.IsNotFound(err))
	})

	t.Run("normal avoids with image copy", func(t *testing.T) {
		r, err := match(t, absent, Normal, nil)
		require.NoError(t, err)
		assert.Equal(t, FromImage, r.Origin)
	})

	t.Run("image avoids with image copy", func(t *testing.T) {
		r, err := match(t, absent, Image, nil)
		require.NoError(t, err)
		assert.Equal(t, FromImage, r.Origin)
	})

	for _, mode := range []Mode{Normal, Image} {
		t.Run(mode.String()+" without any copy fails", func(t *testing.T) {
			_, err := match(t, absentNoImage, mode, nil)
			var missing *MissingHostLibraryError
			assert.ErrorAs(t, err, &missing)
		})
	}
}

func TestMissingHostLibrariesJoined(t *testing.T) {
	cat := catalog.New(
		catalog.Record{Name: "liba.so"},
		catalog.Record{Name: "libb.so"},
		catalog.Record{Name: "libc.so", OnHost: true},
	)

	_, err := Resolve(walker.Roots([]string{"libc.so", "libb.so", "liba.so"}), cat, Host, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liba.so")
	assert.Contains(t, err.Error(), "libb.so")
	assert.NotContains(t, err.Error(), "libc.so")
}

func TestUnresolvedUsesHost(t *testing.T) {
	cat := catalog.New(catalog.Record{Name: "libA.so", OnHost: true, DependsOn: []string{"libX.so"}})
	closure, err := walker.Walk(context.Background(), []string{"libA.so"}, cat)
	require.NoError(t, err)

	// The image has libX but without catalog information only the device
	// copy is eligible.
	res, err := Resolve(closure, cat, Image, inventory{"libX.so": true})
	require.NoError(t, err)
	assert.Equal(t, Resolved{Name: "libX.so", Origin: FromHost, Unresolved: true}, res["libX.so"])
}

func TestNoCatalog(t *testing.T) {
	closure := walker.Roots([]string{"libEGL.so.1", "libGLESv2.so.2"})

	res, err := Resolve(closure, nil, Normal, nil)
	require.NoError(t, err)
	for _, r := range res {
		assert.Equal(t, FromHost, r.Origin)
	}

	res, err = Resolve(closure, nil, Image, inventory{"libEGL.so.1": true})
	require.NoError(t, err)
	assert.Equal(t, FromImage, res["libEGL.so.1"].Origin)
	assert.Equal(t, FromHost, res["libGLESv2.so.2"].Origin)
}

func TestResolveDeterministic(t *testing.T) {
	cat := catalog.New(
		catalog.Record{Name: "a.so", OnHost: true, DependsOn: []string{"b.so", "c.so"}, ImageVersions: []string{"A_1.1"}, HostVersions: []string{"A_1.0"}},
		catalog.Record{Name: "b.so", OnHost: true, DependsOn: []string{"a.so"}, ImageVersions: []string{"B_1.0", "C_2.0"}, HostVersions: []string{"C_2.0", "B_1.0"}},
		catalog.Record{Name: "c.so", OnHost: true, HostVersions: []string{"C_1.0"}},
	)

	var first []Resolved
	for i := range 20 {
		closure, err := walker.Walk(context.Background(), []string{"a.so"}, cat, walker.WithWorkers(i%4+1))
		require.NoError(t, err)
		res, err := Resolve(closure, cat, Normal, nil)
		require.NoError(t, err)
		assert.Len(t, res, 3)
		if first == nil {
			first = Sorted(res)
			continue
		}
		assert.Equal(t, first, Sorted(res))
	}
	assert.Equal(t, []string{"a.so", "b.so", "c.so"}, []string{first[0].Name, first[1].Name, first[2].Name})
}

func TestParseMode(t *testing.T) {
	for _, name := range ModeNames() {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}

	_, err := ParseMode("Normal")
	assert.True(t, errors.Is(err, ErrInvalidMode))
	assert.True(t, errdefs.IsInvalidArgument(err))

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("host")))
	assert.Equal(t, Host, m)
	text, _ := Image.MarshalText()
	assert.Equal(t, "image", string(text))
}

func TestOriginText(t *testing.T) {
	for _, o := range []Origin{FromImage, FromHost} {
		text, err := o.MarshalText()
		require.NoError(t, err)

		var got Origin
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, o, got)
	}

	var o Origin
	assert.Error(t, o.UnmarshalText([]byte("registry")))
}
