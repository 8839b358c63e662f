package types

import "strings"

// Role and reward names are human-entered, so comparisons need one shared
// definition of identity. Names keep their original casing in storage;
// matching trims surrounding whitespace and folds case. Every comparison in
// the codebase goes through these helpers rather than ad hoc ToLower calls.

// CleanName trims surrounding whitespace, preserving the original case.
func CleanName(name string) string {
	return strings.TrimSpace(name)
}

// FoldName returns the canonical comparison form of a name.
func FoldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameName reports whether two names are equal under the case-insensitive
// identity used for roles.
func SameName(a, b string) bool {
	return FoldName(a) == FoldName(b)
}
