// Package image gives read access to the parts of an OCI image the bundle
// generator needs.
//
// [Layout] reads the image configuration out of an OCI image layout
// directory, resolving multi-platform indexes against the target device and
// verifying every blob it reads against its digest. [Rootfs] wraps the
// unpacked root filesystem of the image: it reports which libraries the
// image ships and removes copies that the device will provide instead.
//
// Pulling and unpacking images is left to other tools.
package image
