// Package modelopsbundle is the programmatic entry point to the bundle
// engine: it opens a project, wires the configured blob provider and the
// local cache, and exposes push, pull, status and export over a registry
// adapter.
//
// The heavy lifting lives under pkg/: pkg/core implements the three-way
// diff and the plan/apply protocols, pkg/cafs the content-addressable
// cache, pkg/storage the blob providers, and pkg/registry the OCI
// surface.
package modelopsbundle
