package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/schoolms/backend/core/user"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	UserID string    `json:"id"`
	Role   user.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 signed, time-limited identity tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration

	// NowFunc returns the current time; replaced in tests.
	NowFunc func() time.Time
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret:  []byte(secret),
		issuer:  issuer,
		ttl:     ttl,
		NowFunc: time.Now,
	}
}

// Issue returns a signed token carrying userID and role, expiring after the configured TTL.
func (ts *TokenService) Issue(userID string, role user.Role) (string, error) {
	now := ts.NowFunc()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(ts.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify checks the token's signature and expiry and returns its claims.
// It fails with ErrTokenExpired or ErrTokenInvalid.
func (ts *TokenService) Verify(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		tokenStr,
		claims,
		func(*jwt.Token) (interface{}, error) { return ts.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.NowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
