// Package metadata loads application metadata: what an application needs
// from the device it runs on.
//
// Metadata is a JSON document either shipped inside the image as
// "/appmetadata.json" or supplied separately. Known fields (entry point,
// arguments, graphics libraries, plugin dependencies, capabilities, network
// and resource requirements) are validated and decoded; any other top-level
// field is kept verbatim in [App.Extra] and passed through to the bundle.
package metadata
