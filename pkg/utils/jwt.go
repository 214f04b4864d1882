package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer = "clipcast"
	stateIssuer = "clipcast/oauth"
)

// OperatorClaims identifies whoever drives the pipeline's operator API.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

func GenerateToken(secretKey, operator string, tokenDuration time.Duration) (string, error) {
	return sign(secretKey, tokenIssuer, operator, tokenDuration)
}

func ValidateToken(secretKey, tokenString string) (*OperatorClaims, error) {
	return parse(secretKey, tokenIssuer, tokenString)
}

// GenerateState signs the OAuth state for a connect flow. State tokens carry
// their own issuer so they never pass as operator tokens.
func GenerateState(secretKey, platform string, ttl time.Duration) (string, error) {
	return sign(secretKey, stateIssuer, platform, ttl)
}

// ValidateState checks a state token and that it was issued for platform.
func ValidateState(secretKey, platform, state string) error {
	claims, err := parse(secretKey, stateIssuer, state)
	if err != nil {
		return err
	}
	if claims.Operator != platform {
		return errors.New("state was issued for another platform")
	}
	return nil
}

func sign(secretKey, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Operator: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}

func parse(secretKey, issuer, tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*OperatorClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
