package config

import (
	"io"
	"time"
)

// Config reads typed values from the loaded configuration. Getters follow
// viper semantics: a missing key or a value of the wrong type yields the zero
// value rather than an error.
//
// Duration getters read plain integers and apply the unit named in the
// method, so `read_timeout_seconds: 15` becomes 15*time.Second.
type Config interface {
	io.Closer

	GetBool(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetInt32(key string) int32
	GetFloat64(key string) float64

	// GetBinary decodes a base64-encoded string value.
	GetBinary(key string) []byte

	// GetArray splits a comma-separated string value.
	GetArray(key string) []string

	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration
	GetHour(key string) time.Duration
}
