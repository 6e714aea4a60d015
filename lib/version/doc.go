// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the hwcomposer
// binaries.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected at
// build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/hwcomposer/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When GitCommit is not injected, the VCS revision recorded by the go
// command is used instead.
package version
