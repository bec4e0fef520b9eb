package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
)

// JWTTokenValidator validates JWTs against a JWKS endpoint. It is used with
// GoTrue-compatible auth backends, which expose their signing keys over JWKS.
type JWTTokenValidator struct {
	mu      sync.RWMutex
	keySet  jwk.Set
	jwksURL string
	devMode bool
}

// NewTokenValidator creates a new JWT token validator with the given JWKS URL.
// An empty URL enables development mode: tokens are parsed but not verified.
func NewTokenValidator(jwksURL string) (*JWTTokenValidator, error) {
	if jwksURL == "" {
		return &JWTTokenValidator{
			keySet:  nil,
			jwksURL: "",
			devMode: true,
		}, nil
	}

	keySet, err := jwk.Fetch(context.Background(), jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTTokenValidator{
		keySet:  keySet,
		jwksURL: jwksURL,
		devMode: false,
	}, nil
}

// RefreshKeys refreshes the JWKS from the URL.
func (v *JWTTokenValidator) RefreshKeys() error {
	if v.jwksURL == "" {
		return ErrNoJWKS
	}

	keySet, err := jwk.Fetch(context.Background(), v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to refresh JWKS from %s: %w", v.jwksURL, err)
	}

	v.mu.Lock()
	v.keySet = keySet
	v.mu.Unlock()
	return nil
}

// ExtractUserInfo validates the token and returns the caller identity.
func (v *JWTTokenValidator) ExtractUserInfo(tokenString string) (UserInfo, error) {
	if v.devMode {
		// Parse without verification.
		token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &StandardClaims{})
		if err != nil {
			return UserInfo{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}

		claims, ok := token.Claims.(*StandardClaims)
		if !ok {
			return UserInfo{}, ErrInvalidToken
		}
		return userInfoFromClaims(claims)
	}

	rawKey, err := v.lookupKey(tokenString)
	if err != nil {
		return UserInfo{}, err
	}

	validatedToken, err := jwt.ParseWithClaims(
		tokenString,
		&StandardClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return rawKey, nil
		},
	)
	if err != nil {
		return UserInfo{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := validatedToken.Claims.(*StandardClaims)
	if !ok || !validatedToken.Valid {
		return UserInfo{}, ErrInvalidToken
	}

	if !claims.VerifyExpiresAt(time.Now(), true) {
		return UserInfo{}, ErrExpiredToken
	}

	return userInfoFromClaims(claims)
}

// lookupKey resolves the verification key for the token's kid header,
// refreshing the JWKS once when the key is unknown (key rotation).
func (v *JWTTokenValidator) lookupKey(tokenString string) (interface{}, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &StandardClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse token header: %v", ErrInvalidToken, err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: token header missing kid", ErrInvalidToken)
	}

	v.mu.RLock()
	keySet := v.keySet
	v.mu.RUnlock()

	if keySet == nil {
		return nil, ErrNoJWKS
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		if err := v.RefreshKeys(); err != nil {
			return nil, fmt.Errorf("%w: key with ID %s not found and failed to refresh keys: %v", ErrInvalidToken, kid, err)
		}

		v.mu.RLock()
		keySet = v.keySet
		v.mu.RUnlock()

		key, found = keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("%w: key with ID %s not found after refresh", ErrInvalidToken, kid)
		}
	}

	var rawKey interface{}
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("%w: failed to get raw key: %v", ErrInvalidToken, err)
	}

	return rawKey, nil
}

func userInfoFromClaims(claims *StandardClaims) (UserInfo, error) {
	if claims.Sub == "" {
		return UserInfo{}, fmt.Errorf("%w: no subject (sub) found in token claims", ErrInvalidToken)
	}

	return UserInfo{
		UserID: claims.Sub,
		Email:  claims.Email,
	}, nil
}
