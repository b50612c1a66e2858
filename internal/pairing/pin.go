package pairing

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const pinDigits = 6

// GeneratePIN returns a random 6-digit PIN code. Digits are drawn from
// crypto/rand; leading zeros are kept, the PIN is a string credential.
func GeneratePIN() (string, error) {
	buf := make([]byte, pinDigits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate pin digit: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// maskPIN keeps log lines from leaking the full bearer credential.
func maskPIN(pin string) string {
	if len(pin) < 2 {
		return "******"
	}
	return pin[:2] + "****"
}
