package random

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// ErrEmptyAlphabet is returned when asked to draw from nothing
var ErrEmptyAlphabet = errors.New("random: empty alphabet")

// Random provides random draws that can be mocked for testing
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) (int, error)

	// String generates a random string of the given length from the given alphabet
	String(length int, alphabet string) (string, error)
}

// CryptoRandom implements Random using crypto/rand.
// Errors from the system source are returned rather than masked so callers
// never fall back to a predictable value.
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) Intn(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(result.Int64()), nil
}

// String draws each character uniformly from alphabet
func (r *CryptoRandom) String(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", nil
	}
	if len(alphabet) == 0 {
		return "", ErrEmptyAlphabet
	}
	result := make([]byte, length)
	for i := range result {
		idx, err := r.Intn(len(alphabet))
		if err != nil {
			return "", err
		}
		result[i] = alphabet[idx]
	}
	return string(result), nil
}
