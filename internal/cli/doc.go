// Parses flags and configures logging for bundlegen.
//
// The root command accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level and verbosity
// before the selected command runs.
//
// The generate command writes the runtime configuration of an OCI bundle:
//
//	bundlegen generate -p rpi3 -s ./templates -a app.json out/app
//
// The image must already be unpacked into out/app/rootfs. Platform name and
// template search path may also be given through RDK_PLATFORM and
// RDK_PLATFORM_SEARCHPATH.
package cli
