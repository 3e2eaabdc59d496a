// Package config loads build settings and build definitions.
//
// # Settings
//
// Settings come from assemble.yaml, assemble.yml or assemble.toml in the
// workspace root, layered over DefaultSettings and then over the
// ASSEMBLE_WORKERS, ASSEMBLE_CACHE_BACKEND and LOG_LEVEL environment
// variables. They are validated with struct tags.
//
// # Build definitions
//
// A build definition declares the root project, its tasks and its
// subprojects. Three front ends produce the same BuildDefinition:
//
//   - assemble.cue, unified with the built-in #Project and #Task schemas
//     (see SchemaRegistry). Unknown fields are rejected.
//   - assemble.hcl, decoded with gohcl. Expressions can read env.NAME.
//   - build.star, a Starlark script using the task, project, subproject,
//     glob and env builtins.
//
// Loader picks the front end by file extension and runs ValidateDefinition.
// Apply and NewArena register the result into a project.Arena; task types
// map to the built-in tasks package (empty, exec, copy, delete) and ordering
// names are resolved lazily against the declaring project.
//
// # Usage
//
//	loader, err := config.NewLoader()
//	if err != nil {
//	    return err
//	}
//	def, err := loader.LoadDir(ctx, root)
//	if err != nil {
//	    return err
//	}
//	arena, err := config.NewArena(root, def)
package config
