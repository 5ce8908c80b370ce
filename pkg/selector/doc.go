// Package selector parses field selection strings such as
//
//	id,title,acf.limit(10){id,title,acf{id}}
//
// into a Tree of Field nodes.
//
// # Syntax
//
// A selection is a comma separated list of field specs. A field spec is a
// field name, followed by zero or more ".modifier" or ".modifier(value)"
// suffixes, optionally followed by a "{...}" block selecting nested fields.
// Whitespace is ignored.
//
// # Error handling
//
// Parse never fails. Malformed input (unbalanced braces, empty names, broken
// modifier parentheses) produces a best-effort tree. Surplus closing braces
// never climb above the top level.
//
// Trees are immutable once returned and may be shared between goroutines.
package selector
