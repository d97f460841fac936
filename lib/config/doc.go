// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the qmlrun YAML configuration.
//
// Configuration comes from a single file named by either the
// QMLRUN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no discovery and no search path.
//
// The file may carry environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production also starts from stricter
// defaults, a 10s launch reply timeout and no color, which the base
// values and the production section can each override.
//
// application.project_dir is expanded after loading: ${HOME},
// ${CONFIG_DIR}, and ${VAR:-default} are supported, and relative paths
// resolve against the config file's directory.
//
// Key exports:
//
//   - [Config] -- device, application, launch, log, and console sections
//   - [Default] -- a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
