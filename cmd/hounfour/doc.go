// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main provides hounfour's command-line entrypoint.

# Overview

cmd/hounfour is a single short-lived CLI process, not an HTTP service: each
invocation dispatches one agent-name + prompt request (or runs a diagnostic
subcommand) and exits. There is no server, no database, and no config hot
reload at this layer — config.Loader's four-layer merge (defaults -> YAML
file -> env vars -> CLI flags) runs once per invocation.

# Subcommands

  - invoke <agent>          — resolve the agent's bound model, apply budget/
    rate-limit/context-filter checks, and dispatch the prompt
  - config print-effective  — print the fully-merged config with secrets redacted
  - credentials status      — report each known credential's health
  - trace analyze <file>    — classify a trajectory JSONL file's dominant failure mode

# Build injection

Version, BuildTime, and GitCommit are set via -ldflags at build time.
*/
package main
