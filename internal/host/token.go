package host

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired feed token")

// FeedClaims are the JWT claims presented when attaching to a game server's
// event feed
type FeedClaims struct {
	ServerAddress string `json:"server_address"`
	jwt.RegisteredClaims
}

// TokenService issues and validates the short-lived tokens used for the
// feed handshake. Both ends share the secret out of band.
type TokenService struct {
	secret        []byte
	tokenDuration time.Duration
}

// NewTokenService creates a token service. A zero duration defaults to one
// hour, which outlives any reconnect backoff.
func NewTokenService(secret string, tokenDuration time.Duration) *TokenService {
	if tokenDuration == 0 {
		tokenDuration = time.Hour
	}
	return &TokenService{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
	}
}

// GenerateToken creates a signed feed token for the given server
func (s *TokenService) GenerateToken(serverAddress string) (string, error) {
	claims := FeedClaims{
		ServerAddress: serverAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken validates a feed token and returns its claims
func (s *TokenService) ValidateToken(tokenString string) (*FeedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &FeedClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*FeedClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
