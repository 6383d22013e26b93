package bundle

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/cruciblehq/bundlegen/internal/image"
	"github.com/cruciblehq/bundlegen/internal/matcher"
	"github.com/cruciblehq/bundlegen/internal/metadata"
	"github.com/cruciblehq/bundlegen/internal/platform"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Prefix of the annotations the generator adds.
const annotationPrefix = "org.rdk.bundlegen."

// Options of the read-only bind mounts for device libraries.
var libraryMountOptions = []string{"bind", "ro", "nosuid", "nodev"}

// Mount layers, lowest precedence first.
const (
	layerTemplate  = "template"
	layerPlatform  = "platform"
	layerGPU       = "gpu"
	layerApp       = "app"
	layerLibraries = "libraries"
	layerImage     = "image" // Libraries kept from the image; never mounted over.
)

// Everything the runtime configuration is built from.
type Input struct {
	Platform  *platform.Config
	App       *metadata.App
	Image     *ocispec.ImageConfig // Optional; seeds the process.
	Libraries []matcher.Resolved   // Matching outcome, one entry per library.
	Rootfs    *image.Rootfs        // Optional; image copies of device libraries are removed from it.
}

// Generated runtime configuration.
type Output struct {
	Spec     *specs.Spec
	Removed  []string        // Rootfs paths deleted because the device copy is mounted over them.
	Shadowed []ShadowedMount // Mounts replaced by later ones.
}

// Builds the runtime configuration of the bundle.
//
// The platform's OCI template is the starting point. Mounts are layered as
// template, platform, GPU (graphics applications only), application and
// finally one read-only bind mount per library taken from the device; a
// later mount replaces an earlier one with the same destination. Paths of
// libraries kept from the image are never mounted over: any mount at such a
// path is dropped and reported as shadowed. Mounts are sorted by
// destination. Environment variables are merged by name in the
// order template, platform, GPU, image, application.
//
// Image copies of device libraries are removed from the rootfs only after
// the configuration is complete, so a failed generation leaves the rootfs
// untouched. Identical inputs produce identical output.
func Generate(in Input) (*Output, error) {
	spec, err := cloneTemplate(&in.Platform.OCITemplate)
	if err != nil {
		return nil, err
	}

	graphics := in.App.NeedsGraphics()

	if err := setProcess(spec, in); err != nil {
		return nil, err
	}

	layers := mountLayers{}
	layers.add(layerTemplate, spec.Mounts)
	layers.add(layerPlatform, in.Platform.Mounts)
	if graphics {
		layers.add(layerGPU, in.Platform.GPU.Mounts)
	}
	layers.add(layerApp, in.App.Mounts)
	layers.add(layerLibraries, libraryMounts(in.Libraries, in.Platform.LibrarySearchPaths))

	mounts, shadowed := layers.resolve(imagePaths(in.Rootfs, in.Libraries, in.Platform.LibrarySearchPaths))
	spec.Mounts = mounts

	if graphics {
		addDevices(spec, in.Platform.GPU.Devices)
	}
	if ram := in.App.RAM(); ram > 0 {
		linuxResources(spec).Memory = &specs.LinuxMemory{Limit: &ram}
	}
	if err := annotate(spec, in); err != nil {
		return nil, err
	}

	removed, err := removeShadowedCopies(in.Rootfs, in.Libraries, in.Platform.LibrarySearchPaths)
	if err != nil {
		return nil, err
	}

	slog.Debug("runtime configuration generated",
		"mounts", len(spec.Mounts),
		"env", len(spec.Process.Env),
		"removed", len(removed),
	)

	return &Output{Spec: spec, Removed: removed, Shadowed: shadowed}, nil
}

// Returns a deep copy of the template, so the loaded platform stays
// untouched.
func cloneTemplate(t *specs.Spec) (*specs.Spec, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	var spec specs.Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if spec.Version == "" {
		spec.Version = specs.Version
	}
	if spec.Root == nil {
		spec.Root = &specs.Root{Path: "rootfs"}
	}
	if spec.Process == nil {
		spec.Process = &specs.Process{}
	}
	return &spec, nil
}

// Fills in arguments, environment, working directory and user.
func setProcess(spec *specs.Spec, in Input) error {
	img := in.Image
	if img == nil {
		img = &ocispec.ImageConfig{}
	}

	args := processArgs(in.App, img)
	if len(args) == 0 {
		return ErrNoEntryPoint
	}
	spec.Process.Args = args

	env := envSet{}
	env.add(spec.Process.Env)
	env.add(in.Platform.Env)
	if in.App.NeedsGraphics() {
		env.add(in.Platform.GPU.Env)
	}
	env.add(img.Env)
	env.add(in.App.Env)
	spec.Process.Env = env.list()

	spec.Process.Cwd = cmp.Or(in.App.WorkingDir, img.WorkingDir, spec.Process.Cwd, "/")

	if u := spec.Process.User; img.User != "" && u.UID == 0 && u.GID == 0 && u.Username == "" {
		user, ok := parseUser(img.User)
		if !ok {
			slog.Warn("ignoring non-numeric image user", "user", img.User)
		} else {
			spec.Process.User = user
		}
	}

	return nil
}

// Returns the command line of the application.
//
// The metadata entry point and arguments win. Without an entry point the
// image's Entrypoint is used, followed by the metadata arguments or, when
// there are none, the image's Cmd.
func processArgs(app *metadata.App, img *ocispec.ImageConfig) []string {
	if app.EntryPoint != "" {
		return slices.Concat([]string{app.EntryPoint}, app.Args)
	}
	if len(app.Args) > 0 {
		return slices.Concat(img.Entrypoint, app.Args)
	}
	return slices.Concat(img.Entrypoint, img.Cmd)
}

// Parses a numeric "uid" or "uid:gid" user specification.
func parseUser(s string) (specs.User, bool) {
	uidStr, gidStr, hasGID := strings.Cut(s, ":")
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return specs.User{}, false
	}
	user := specs.User{UID: uint32(uid), GID: uint32(uid)}
	if hasGID {
		gid, err := strconv.ParseUint(gidStr, 10, 32)
		if err != nil {
			return specs.User{}, false
		}
		user.GID = uint32(gid)
	}
	return user, true
}

// Ordered environment; a later value replaces an earlier one in place.
type envSet struct {
	keys   []string
	values map[string]string
}

func (e *envSet) add(vars []string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	for _, kv := range vars {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := e.values[key]; !ok {
			e.keys = append(e.keys, key)
		}
		e.values[key] = kv
	}
}

func (e *envSet) list() []string {
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, e.values[k])
	}
	return out
}

// Returns the bind mounts for libraries taken from the device.
func libraryMounts(libs []matcher.Resolved, searchPaths []string) []specs.Mount {
	var out []specs.Mount
	for _, lib := range libs {
		if lib.Origin != matcher.FromHost {
			continue
		}
		p := hostPath(lib, searchPaths)
		out = append(out, specs.Mount{
			Destination: p,
			Type:        "bind",
			Source:      p,
			Options:     slices.Clone(libraryMountOptions),
		})
	}
	return out
}

// Returns where a device library lives: the catalog path when declared, the
// name itself when absolute, or the first search directory.
func hostPath(lib matcher.Resolved, searchPaths []string) string {
	switch {
	case lib.Path != "":
		return path.Clean(lib.Path)
	case path.IsAbs(lib.Name):
		return path.Clean(lib.Name)
	case len(searchPaths) > 0:
		return path.Join(searchPaths[0], lib.Name)
	default:
		return path.Join("/usr/lib", lib.Name)
	}
}

// Returns the paths owned by libraries kept from the image: every copy found
// in the rootfs and the path the device copy would be mounted at. Sorted,
// without duplicates.
func imagePaths(rootfs *image.Rootfs, libs []matcher.Resolved, searchPaths []string) []string {
	var out []string
	for _, lib := range libs {
		if lib.Origin != matcher.FromImage {
			continue
		}
		if rootfs != nil {
			out = append(out, rootfs.Copies(lib.Name)...)
		}
		out = append(out, hostPath(lib, searchPaths))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Deletes image copies of every library mounted from the device. Copies in
// any search directory are removed, as is a copy at the mount destination.
func removeShadowedCopies(rootfs *image.Rootfs, libs []matcher.Resolved, searchPaths []string) ([]string, error) {
	if rootfs == nil {
		return nil, nil
	}

	var targets []string
	for _, lib := range libs {
		if lib.Origin != matcher.FromHost {
			continue
		}
		targets = append(targets, rootfs.Copies(lib.Name)...)
		if dest := hostPath(lib, searchPaths); rootfs.Exists(dest) {
			targets = append(targets, dest)
		}
	}
	slices.Sort(targets)
	targets = slices.Compact(targets)

	for _, p := range targets {
		if err := rootfs.Remove(p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
		}
	}
	return targets, nil
}

// A mount with the layer that supplied it.
type layeredMount struct {
	specs.Mount
	layer string
}

// Mounts collected layer by layer.
type mountLayers struct {
	mounts []layeredMount
}

func (l *mountLayers) add(layer string, mounts []specs.Mount) {
	for _, m := range mounts {
		m.Destination = path.Clean(m.Destination)
		l.mounts = append(l.mounts, layeredMount{Mount: m, layer: layer})
	}
}

// Keeps the last mount per destination, drops mounts at reserved paths and
// returns the result sorted by destination, along with the mounts that were
// dropped. Reserved paths belong to libraries kept from the image.
func (l *mountLayers) resolve(reserved []string) ([]specs.Mount, []ShadowedMount) {
	kept := make(map[string]layeredMount, len(l.mounts))
	var shadowed []ShadowedMount

	for _, m := range l.mounts {
		if prev, ok := kept[m.Destination]; ok {
			shadowed = append(shadowed, ShadowedMount{
				Destination: m.Destination,
				Layer:       prev.layer,
				ShadowedBy:  m.layer,
			})
		}
		kept[m.Destination] = m
	}

	for _, dest := range reserved {
		if m, ok := kept[dest]; ok {
			shadowed = append(shadowed, ShadowedMount{
				Destination: dest,
				Layer:       m.layer,
				ShadowedBy:  layerImage,
			})
			delete(kept, dest)
		}
	}

	out := make([]specs.Mount, 0, len(kept))
	for _, m := range kept {
		out = append(out, m.Mount)
	}
	slices.SortFunc(out, func(a, b specs.Mount) int {
		return strings.Compare(a.Destination, b.Destination)
	})
	return out, shadowed
}

// Adds the GPU device nodes and allows access to them.
func addDevices(spec *specs.Spec, devices []specs.LinuxDevice) {
	if len(devices) == 0 {
		return
	}
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	res := linuxResources(spec)

	for _, d := range devices {
		if slices.ContainsFunc(spec.Linux.Devices, func(existing specs.LinuxDevice) bool {
			return existing.Path == d.Path
		}) {
			continue
		}
		spec.Linux.Devices = append(spec.Linux.Devices, d)

		major, minor := d.Major, d.Minor
		res.Devices = append(res.Devices, specs.LinuxDeviceCgroup{
			Allow:  true,
			Type:   d.Type,
			Major:  &major,
			Minor:  &minor,
			Access: "rwm",
		})
	}
}

func linuxResources(spec *specs.Spec) *specs.LinuxResources {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Linux.Resources == nil {
		spec.Linux.Resources = &specs.LinuxResources{}
	}
	return spec.Linux.Resources
}

// Records the application identity and passthrough metadata as annotations.
func annotate(spec *specs.Spec, in Input) error {
	if spec.Annotations == nil {
		spec.Annotations = make(map[string]string)
	}

	set := func(key, value string) {
		if value != "" {
			spec.Annotations[annotationPrefix+key] = value
		}
	}
	set("platform", in.Platform.Name)
	set("id", in.App.ID)
	set("version", in.App.Version)

	for key, raw := range in.App.Extra {
		value, err := annotationValue(raw)
		if err != nil {
			return fmt.Errorf("metadata field %q: %w", key, err)
		}
		set("app."+key, value)
	}
	return nil
}

// Returns strings unquoted and anything else as compact JSON, with numbers
// and key order kept as written.
func annotationValue(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
