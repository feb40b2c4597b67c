package room

import (
	"strings"
	"unicode"

	"github.com/mcoot/livequiz/internal/dependencies/random"
	"github.com/mcoot/livequiz/internal/model"
)

const (
	// JoinCodeLength is the number of symbols in a join code
	JoinCodeLength = 6
	// JoinCodeAlphabet excludes I, O, 0 and 1 to avoid misreads
	JoinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MaxNameLength caps display names, in runes
	MaxNameLength = 40
	// DefaultPlayerName replaces empty display names
	DefaultPlayerName = "Player"
)

// GenerateJoinCode draws a fresh code. Uniqueness is enforced by the store.
func GenerateJoinCode(rng random.Random) (model.JoinCode, error) {
	code, err := rng.String(JoinCodeLength, JoinCodeAlphabet)
	if err != nil {
		return "", err
	}
	return model.JoinCode(code), nil
}

// NormalizeCode trims and upper-cases user-entered codes
func NormalizeCode(code string) model.JoinCode {
	return model.JoinCode(strings.ToUpper(strings.TrimSpace(code)))
}

// SanitizeName trims, strips control characters and caps the length of a
// display name, falling back to DefaultPlayerName.
func SanitizeName(name string) string {
	return SanitizeNameOr(name, DefaultPlayerName)
}

// SanitizeNameOr is SanitizeName with a caller-chosen fallback
func SanitizeNameOr(name, fallback string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > MaxNameLength {
		cleaned = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
