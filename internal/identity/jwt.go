package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutoring-chat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier accepts HS256 tokens whose subject is the user id.
type JWTVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewJWTVerifier creates a verifier for tokens signed with secret. When
// issuer is non-empty the iss claim must match it.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 5 * time.Second,
	}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, domain.ErrInvalidCredential
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, &domain.Error{
				Kind:   domain.KindAuth,
				Reason: domain.ReasonInvalidCredential,
				Msg:    "token expired, refresh and reconnect",
				Err:    err,
			}
		}
		return Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}

	if claims.Subject == "" {
		return Identity{}, domain.ErrInvalidCredential
	}

	return Identity{UserID: claims.Subject}, nil
}
