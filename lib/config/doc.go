// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the composer.
//
// Configuration is loaded from a single file specified by either the
// HWC_CONFIG environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no file search and no fallback location.
//
// The file may contain development and production sections that
// override base values when [Config].Environment matches. Production
// defaults are stricter about uptime: contract violations are logged
// instead of panicking.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${HWC_STATE}, and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] -- master struct with Device, Flip, Registry, Options, Log
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
package config
