// Package diagquery provides a small typed query surface over the
// diagnostic store.
//
// A Query is validated against the fault vocabulary before compilation,
// then compiled into a parameterized SQL where-clause consumed by the
// store's read paths and the trace CLI. Compilation is deterministic:
// the same Query always yields the same SQL text and argument order.
//
// All values are parameterized, never interpolated.
package diagquery
