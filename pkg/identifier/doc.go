// Package identifier defines the hierarchical identifiers used to address
// projects and tasks.
//
// An identifier is a non-empty list of parts rendered with a leading colon,
// for example ":root:app:compile". Every part must start with an ASCII
// letter followed by letters, digits, underscores or dashes.
//
// Task and project identifiers are distinct types so that a project id can
// never be passed where a task id is expected:
//
//	proj := identifier.MustProject("root", "app")
//	compile, err := proj.Task("compile")
//
// Shorthand matching lets users refer to ":root:app:compile" as "compile" or
// "app:compile" from the command line.
package identifier
