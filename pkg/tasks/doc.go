// Package tasks provides the built-in task types: lifecycle (Empty), process
// execution (Exec), file copying (Copy), deletion (Delete) and the task
// report (Report).
package tasks
