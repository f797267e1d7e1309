package user

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

const (
	tempPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	resetTokenBytes      = 20
)

// GenerateTempPassword returns a password of length n drawn uniformly from [A-Za-z0-9].
func GenerateTempPassword(n int) (string, error) {
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	pwd := make([]byte, n)
	for i := range pwd {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "reading random index")
		}
		pwd[i] = tempPasswordAlphabet[idx.Int64()]
	}
	return string(pwd), nil
}

// GenerateResetToken returns a random hex token and the hash under which it is stored.
func GenerateResetToken() (token, hash string, err error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", errors.Wrap(err, "reading random bytes")
	}
	token = hex.EncodeToString(b)
	return token, HashResetToken(token), nil
}

// HashResetToken returns the stored form of a reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
