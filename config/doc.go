// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config manages hounfour's configuration lifecycle: multi-source
loading, live reload of the permissions/routing files it delegates to
contextfilter.PermissionsCache and FileWatcher, and effective-config
display for `hounfour config print-effective`. Configuration merges in
priority order "defaults -> YAML file -> environment variables -> CLI
flags".

# Core types

  - Config: top-level aggregate covering providers, aliases, agents,
    routing (fallback/downgrade/rate_limits/circuit_breaker), metering,
    feature_flags, secret sourcing, logging, and telemetry
  - Loader: builder-pattern config loader; chains config path, env
    prefix, and custom validators
  - FileWatcher: fsnotify-backed (with timer-poll fallback) file change
    watcher; contextfilter.PermissionsCache runs its own fsnotify watch
    and does not use it

# Capabilities

  - Multi-source loading: YAML file under a top-level "hounfour" key,
    HOUNFOUR_-prefixed env vars, then CLI flag overrides
  - Redaction: config/redaction integration via redaction.ConfigValue for
    print-effective output, so secret-shaped values never reach stdout
  - Validation: built-in Validate() plus custom validator hooks, and
    routing.ValidateChains/ValidateBindings for the routing sub-config
*/
package config
