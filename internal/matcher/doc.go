// Package matcher decides, for every library of a dependency closure,
// whether the bundle uses the copy shipped in the image or the copy already
// installed on the device.
//
// Three policies are available:
//
//	host    Always use the device copy. A library the device lacks is a
//	        [MissingHostLibraryError].
//	image   Use the image copy whenever the image has one, regardless of
//	        version; otherwise fall back to the device copy.
//	normal  Compare API version tags ("GLIBC_2.27"). Tags are only
//	        comparable within one family. The image copy wins only when it
//	        is newer in at least one common family and older in none; every
//	        other outcome, including ties, uses the device copy. Without
//	        version information on either side the result equals host mode.
//
// Libraries that the dependency walk could not find in the catalog are
// always taken from the device.
//
// Results do not depend on map iteration or traversal order: libraries are
// processed in sorted order and every tie is broken by name.
package matcher
