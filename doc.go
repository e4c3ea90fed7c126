// Package watch provides a cross-platform recursive filesystem watcher.
//
// A single watched root is mapped to a unified stream of [Event] values
// describing creation, modification, destruction, and renames anywhere
// beneath that root. Platform-specific adapters translate FSEvents
// (Darwin), fanotify, and inotify (Linux) into this common model; see
// [Watch] for the entry point.
package watch
