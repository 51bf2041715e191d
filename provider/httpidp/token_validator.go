package httpidp

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// accessClaims is the claim set the identity service mints: registered
// claims plus the principal's email.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// tokenValidator checks access tokens against the identity service's JWKS.
type tokenValidator struct {
	jwks *keyfunc.JWKS
}

func newTokenValidator(jwksURL string) (*tokenValidator, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, err
	}
	return &tokenValidator{jwks: jwks}, nil
}

// Validate parses and verifies the token, returning its claims.
func (v *tokenValidator) Validate(tokenString string) (*accessClaims, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "access token validation failed").
			WithTextCode("INVALID_ACCESS_TOKEN").
			WithCode(goerrors.CodeUnauthorized)
	}
	if !token.Valid {
		return nil, goerrors.New("access token is not valid", goerrors.CategoryAuth).
			WithTextCode("INVALID_ACCESS_TOKEN").
			WithCode(goerrors.CodeUnauthorized)
	}
	return claims, nil
}
