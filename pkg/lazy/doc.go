// Package lazy implements deferred configuration values.
//
// A Provider produces a value only when it is read. Build scripts wire
// providers together during configuration (mapping a task's output into
// another task's input, for example) and nothing is evaluated until the
// executor serializes task inputs.
//
// Prop is the settable variant: a named cell that holds either a value or
// another provider. Reading an unset Prop yields a *ProviderError naming the
// property.
package lazy
