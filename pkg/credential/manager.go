// Package credential hashes and verifies account passwords with bcrypt.
package credential

import (
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest work factor the manager accepts.
const MinCost = 10

// ErrEmptyPassword is returned when asked to hash an empty plaintext.
var ErrEmptyPassword = errors.New("password must not be empty")

// bcrypt output: "$2a$" | "$2b$" | "$2y$", two-digit cost, "$", 53 chars of salt+digest.
var hashPattern = regexp.MustCompile(`^\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}$`)

// Manager converts plaintext passwords into stored hashes and verifies candidates against them.
type Manager struct {
	cost int
}

// NewManager builds a manager; costs below MinCost are raised to MinCost.
func NewManager(cost int) *Manager {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Manager{cost: cost}
}

// Cost reports the configured work factor.
func (m *Manager) Cost() int {
	return m.cost
}

// IsHash reports whether value already has the shape of a hash produced by this manager.
func (m *Manager) IsHash(value string) bool {
	return hashPattern.MatchString(value)
}

// Hash returns a salted bcrypt hash of plain.
func (m *Manager) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), m.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// HashIfNeeded hashes value unless it is already a hash, in which case it is returned unchanged.
func (m *Manager) HashIfNeeded(value string) (string, error) {
	if m.IsHash(value) {
		return value, nil
	}
	return m.Hash(value)
}

// Verify reports whether plain matches hash. A missing hash never matches.
func (m *Manager) Verify(plain, hash string) bool {
	if plain == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
