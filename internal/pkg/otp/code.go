package otp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// ErrCodeLength is returned when the requested length cannot be generated.
var ErrCodeLength = errors.New("otp: code length out of range")

// Code returns a numeric code of exactly length digits, drawn uniformly from
// [10^(length-1), 10^length - 1]. Every code of that length is equally
// likely; there is no modulo bias.
func Code(length int) (string, error) {
	if length < 1 || length > 18 {
		return "", ErrCodeLength
	}

	low := int64(1)
	for i := 1; i < length; i++ {
		low *= 10
	}

	// 9 * 10^(length-1) values exist at this length.
	n, err := rand.Int(rand.Reader, big.NewInt(9*low))
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(low+n.Int64(), 10), nil
}
