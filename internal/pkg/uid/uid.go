// Package uid provides the identifier generators used across modules:
// UUIDs for correlation, snowflakes for int64 primary keys, and object ids
// for opaque string tokens.
package uid

// StringID generates opaque string identifiers.
type StringID interface {
	Generate() string
}

// NumberID generates int64 identifiers suitable for primary keys.
type NumberID interface {
	Generate() int64
}
