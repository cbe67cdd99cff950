package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// TempPasswordLength is the length of generated temporary passwords.
const TempPasswordLength = 14

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	symbolChars  = "!@#$%^&*"
	tempAlphabet = lowerChars + upperChars + digitChars + symbolChars
)

// ErrPasswordTooLong is returned for passwords bcrypt would silently truncate.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. A cost of 0 uses bcrypt.DefaultCost.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *bcryptHasher) Verify(hash, password string) bool {
	if hash == "" || len(password) > MaxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var _ PasswordHasher = (*bcryptHasher)(nil)

// GenerateTempPassword returns a random password of the given length drawn
// from letters, digits and !@#$%^&*. It always holds at least one lower-case
// letter, one upper-case letter and one digit. Lengths below 3 are raised to 3.
func GenerateTempPassword(length int) (string, error) {
	if length < 3 {
		length = 3
	}
	for {
		var sb strings.Builder
		for i := 0; i < length; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tempAlphabet))))
			if err != nil {
				return "", fmt.Errorf("failed to generate password: %w", err)
			}
			sb.WriteByte(tempAlphabet[n.Int64()])
		}
		pw := sb.String()
		if strings.ContainsAny(pw, lowerChars) && strings.ContainsAny(pw, upperChars) && strings.ContainsAny(pw, digitChars) {
			return pw, nil
		}
	}
}
