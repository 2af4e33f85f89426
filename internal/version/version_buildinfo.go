// Copyright (c) 2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build go1.18
// +build go1.18

package version

import "runtime/debug"

// vcsCommitID returns an abbreviated commit hash from the version
// control information embedded by the Go toolchain, or an empty string
// when the binary was not built from a git checkout.
func vcsCommitID() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, bs := range bi.Settings {
		settings[bs.Key] = bs.Value
	}
	if settings["vcs"] != "git" {
		return ""
	}
	revision := settings["vcs.revision"]
	if len(revision) > 9 {
		revision = revision[:9]
	}
	return revision
}
