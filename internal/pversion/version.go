// Copyright 2023-2026 the Pinniped contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pversion reports which code a certsso binary was built from.
package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/coreos/go-semver/semver"
	apimachineryversion "k8s.io/apimachinery/pkg/version"
	k8sstrings "k8s.io/utils/strings"
)

//nolint:gochecknoglobals // swapped during unit tests
var (
	readBuildInfo = debug.ReadBuildInfo

	// gitVersion is set with -ldflags "-X 'go.certsso.dev/internal/pversion.gitVersion=v1.2.3'".
	gitVersion string
)

const unknownVersion = "v0.0.0"

// Get combines the linker provided release version with the VCS stamp that the Go toolchain embeds.
func Get() apimachineryversion.Info {
	info := apimachineryversion.Info{
		Major:        "0",
		Minor:        "0",
		GitVersion:   unknownVersion,
		GitTreeState: "dirty",
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}

	if v, err := semver.NewVersion(strings.TrimPrefix(gitVersion, "v")); err == nil {
		info.GitVersion = gitVersion
		info.Major = fmt.Sprint(v.Major)
		info.Minor = fmt.Sprint(v.Minor)
	}

	applyVCSSettings(&info)

	if info.GitVersion == unknownVersion && info.GitCommit != "" {
		info.GitVersion = fmt.Sprintf("%s-%s-%s", unknownVersion, k8sstrings.ShortenString(info.GitCommit, 8), info.GitTreeState)
	}
	return info
}

func applyVCSSettings(info *apimachineryversion.Info) {
	buildInfo, ok := readBuildInfo()
	if !ok {
		return
	}
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.GitCommit = setting.Value
		case "vcs.time":
			info.BuildDate = setting.Value
		case "vcs.modified":
			if setting.Value == "false" {
				info.GitTreeState = "clean"
			}
		}
	}
}

// UserAgent is sent on every outgoing request, e.g. "certsso/v1.2.3 (linux/amd64)".
func UserAgent() string {
	info := Get()
	return fmt.Sprintf("certsso/%s (%s)", info.GitVersion, info.Platform)
}
