package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// NewOTP returns a uniformly random code in [100000, 999999]. Every code
// is exactly six digits; leading zeros cannot occur.
func NewOTP(digits int) (string, error) {
	if digits != 6 {
		return "", errors.New("unsupported otp width")
	}

	span := big.NewInt(otpMax - otpMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
