// Package compat decides whether an application can run on a device before
// any bundle work starts.
//
// Every requirement in the application metadata is checked against the
// platform template: graphics libraries, plugin dependencies and declared
// capabilities must be offered by the device, graphics applications need a
// device with a GPU, the requested network type must be supported, the RAM
// requirement must fit, and, when known, the image must be built for the
// device's OS and architecture. All unmet requirements are reported
// together in an [IncompatibleError].
package compat
