package policy

// Built-in policy names.
const (
	PolicyReferences   = "task-references"
	PolicyExecIO       = "exec-io"
	PolicyDeletePaths  = "delete-paths"
	PolicyCopyInto     = "copy-into"
	PolicyDescriptions = "task-descriptions"
)

// BuiltinPolicies returns the lint rules every build definition is checked against.
func BuiltinPolicies() []Policy {
	return []Policy{
		referencesPolicy(),
		execIOPolicy(),
		deletePathsPolicy(),
		copyIntoPolicy(),
		descriptionsPolicy(),
	}
}

// referencesPolicy reports orderings that name no known task, and tasks
// that order themselves.
func referencesPolicy() Policy {
	return Policy{
		Name:        PolicyReferences,
		Description: "Task orderings must name existing tasks other than the task itself",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package assemble.lint.references

import rego.v1

kinds := ["depends_on", "finalized_by", "runs_before", "runs_after"]

deny contains violation if {
	some t in input.tasks
	some kind in kinds
	some ref in object.get(t, kind, [])
	not resolves(ref)
	violation := {
		"task": t.id,
		"message": sprintf("%s references unknown task %q", [kind, ref]),
	}
}

deny contains violation if {
	some t in input.tasks
	some kind in kinds
	some ref in object.get(t, kind, [])
	self_reference(t, ref)
	violation := {
		"task": t.id,
		"message": sprintf("%s references the task itself", [kind]),
	}
}

resolves(ref) if {
	startswith(ref, ":")
	ref in input.known
}

resolves(ref) if {
	not startswith(ref, ":")
	suffix := concat("", [":", ref])
	some id in input.known
	endswith(id, suffix)
}

self_reference(t, ref) if ref == t.name

self_reference(t, ref) if ref == t.id
`,
	}
}

// execIOPolicy flags exec tasks that can never be up to date.
func execIOPolicy() Policy {
	return Policy{
		Name:        PolicyExecIO,
		Description: "Exec tasks should declare inputs and outputs so they can be skipped",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package assemble.lint.exec_io

import rego.v1

deny contains violation if {
	some t in input.tasks
	t.type == "exec"
	not has_inputs(t)
	violation := {
		"task": t.id,
		"message": "exec task declares no inputs and runs on every build",
	}
}

deny contains violation if {
	some t in input.tasks
	t.type == "exec"
	has_inputs(t)
	count(object.get(t, "output_files", [])) == 0
	violation := {
		"task": t.id,
		"message": "exec task declares no output files; deleted outputs will not trigger a rerun",
		"severity": "info",
	}
}

has_inputs(t) if count(object.get(t, "inputs", {})) > 0

has_inputs(t) if count(object.get(t, "input_files", [])) > 0

has_inputs(t) if count(object.get(t, "source_files", [])) > 0
`,
	}
}

// deletePathsPolicy keeps delete tasks inside their project.
func deletePathsPolicy() Policy {
	return Policy{
		Name:        PolicyDeletePaths,
		Description: "Delete tasks may only remove paths inside their project directory",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package assemble.lint.delete_paths

import rego.v1

deny contains violation if {
	some t in input.tasks
	t.type == "delete"
	some p in object.get(t, "paths", [])
	escapes(p)
	violation := {
		"task": t.id,
		"message": sprintf("refuses to delete %q outside the project directory", [p]),
	}
}

escapes(p) if startswith(p, "/")

escapes(p) if p in {".", "..", "./"}

escapes(p) if startswith(p, "../")

escapes(p) if contains(p, "/../")
`,
	}
}

// copyIntoPolicy reports copy tasks whose destination is one of their sources.
func copyIntoPolicy() Policy {
	return Policy{
		Name:        PolicyCopyInto,
		Description: "Copy tasks must not copy into their own sources",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package assemble.lint.copy_into

import rego.v1

deny contains violation if {
	some t in input.tasks
	t.type == "copy"
	some src in object.get(t, "from", [])
	inside(t.into, src)
	violation := {
		"task": t.id,
		"message": sprintf("copies into %q which is inside source %q", [t.into, src]),
	}
}

inside(into, src) if into == src

inside(into, src) if startswith(into, concat("", [trim_suffix(src, "/"), "/"]))
`,
	}
}

// descriptionsPolicy asks for descriptions on tasks shown by the tasks report.
func descriptionsPolicy() Policy {
	return Policy{
		Name:        PolicyDescriptions,
		Description: "Grouped tasks should have a description",
		Severity:    SeverityInfo,
		Enabled:     true,
		Rego: `package assemble.lint.descriptions

import rego.v1

deny contains violation if {
	some t in input.tasks
	object.get(t, "group", "") != ""
	object.get(t, "description", "") == ""
	violation := {
		"task": t.id,
		"message": sprintf("task in group %q has no description", [t.group]),
	}
}
`,
	}
}
