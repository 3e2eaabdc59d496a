// Package watch drives continuous builds: it watches a project tree with
// fsnotify and reports debounced batches of changed files.
package watch
