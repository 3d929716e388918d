package utils

import (
	"crypto/rand"
	"math/big"
)

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateReferralCode returns a random 8 character code without ambiguous
// characters such as 0/O and 1/I.
func GenerateReferralCode() (string, error) {
	code := make([]byte, 8)
	max := big.NewInt(int64(len(referralAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = referralAlphabet[n.Int64()]
	}
	return string(code), nil
}
