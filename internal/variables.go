package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (

	// Program name, used for the CLI, log group and template directories.
	Name = "bundlegen"

	// Placeholder for a linker variable that was never set.
	undefined = "(undefined)"

	// Reported instead of a version string for developer builds.
	localBuild = "(local)"

	// Release branch; omitted from version strings.
	releaseBranch = "main"
)

// Linker variables, set with -ldflags "-X".
var (
	version   = "" // Release version (e.g., "1.4.0").
	stage     = "" // Branch the binary was built from.
	gitCommit = "" // Commit hash.

	rawQuiet   = "false" // Default for quiet mode.
	rawDebug   = "false" // Default for debug mode.
	rawVerbose = "false" // Default for verbose logging.
)

// Returns the release version without any leading "v".
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" {
		return undefined
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the branch the binary was built from, lowercased.
func Stage() string {
	if s := strings.TrimSpace(stage); s != "" {
		return strings.ToLower(s)
	}
	return undefined
}

// Returns the commit hash the binary was built from.
func GitCommit() string {
	if c := strings.TrimSpace(gitCommit); c != "" {
		return c
	}
	return undefined
}

// Reports whether the binary was built outside the release pipeline, i.e.
// any of version, stage or commit was left unset.
func IsLocal() bool {
	for _, v := range []string{version, stage, gitCommit} {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// Returns "<version>[+<stage>] <commit> [<arch>]", or "(local)" for
// developer builds. The stage suffix is dropped for release branch builds.
func VersionString() string {
	if IsLocal() {
		return localBuild
	}

	suffix := ""
	if s := Stage(); s != releaseBranch {
		suffix = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), suffix, GitCommit(), runtime.GOARCH)
}
