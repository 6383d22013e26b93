// Locations used when discovering platform templates and writing bundles.
//
// Explicit search paths given on the command line (or through
// RDK_PLATFORM_SEARCHPATH) are consulted first. After them come the XDG data
// directories, each with a "bundlegen/templates" subdirectory, so that
// templates installed system-wide or per user are found without flags.
package paths
