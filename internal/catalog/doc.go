// Package catalog loads the library catalog ("_libs.json") that drives
// dependency walking and library matching.
//
// The catalog maps a library name to its declared dependencies and the API
// version tags (e.g. "GLIBC_2.27") reported for the copy shipped in the
// image and for the copy installed on the device:
//
//	{
//	  "libEGL.so.1": {
//	    "dependsOn":     ["libc.so.6", "libgbm.so.1"],
//	    "imageVersions": ["GLIBC_2.17"],
//	    "hostVersions":  ["GLIBC_2.27"],
//	    "path":          "/usr/lib/libEGL.so.1"
//	  }
//	}
//
// A missing catalog is a soft failure ([ErrCatalogNotFound]): callers fall
// back to the declared libraries without transitive expansion. A catalog
// that fails validation or repeats a library name is fatal
// ([ErrMalformedCatalog]).
//
// Records are built once at load time and never modified afterwards.
package catalog
