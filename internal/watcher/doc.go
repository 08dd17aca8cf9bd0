// Package watcher keeps a workspace in sync with a directory using
// fsnotify. Bursts of changes are debounced into one manifest update, so
// only changed files are re-embedded and deleted files are removed. An
// optional cron schedule adds periodic full resyncs.
package watcher
