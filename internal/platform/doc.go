// Package platform loads device descriptions ("platform templates").
//
// A platform template names a device and lists what it offers to
// applications: capabilities, the directories its dynamic loader searches,
// the graphics and plugin libraries it ships, hardware limits, the network
// modes it supports, and the OCI runtime configuration every bundle for the
// device starts from. Templates are JSON or YAML documents named after the
// platform ("rpi3.json", "rpi3.yaml") and are looked up through a list of
// search directories. The device's library catalog, when present, lives
// beside the template as "<name>_libs.json".
package platform
