package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/syncerr"
	"github.com/mothershiphq/mothership/pkg/types"
)

// Claims mirrors mothership-common/src/auth.rs's Claims struct.
type Claims struct {
	Subject     string `json:"sub"`
	MachineID   string `json:"machine_id,omitempty"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens and resolves them to a types.User.
// Token issuance is handled by the OAuth device flow elsewhere; this
// package only verifies what that flow produced.
type Verifier struct {
	signingKey []byte
	store      storage.Store
}

// New creates a Verifier backed by store for user lookup/recreation.
func New(signingKey []byte, store storage.Store) *Verifier {
	return &Verifier{signingKey: signingKey, store: store}
}

// Verify parses and validates tokenString, then resolves it to a
// types.User. If the store has no user matching the claims' subject,
// but the claims carry an email (meaning the token was issued by the
// OAuth path), the user is recreated from the claims rather than
// rejected — survival behavior across ephemeral
// database resets.
func (v *Verifier) Verify(tokenString string) (*types.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", syncerr.ErrNotAuthorized, err)
	}

	user, err := v.store.GetUser(claims.Subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", claims.Subject, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: user %s not found and token carries no recovery email", syncerr.ErrNotAuthorized, claims.Subject)
	}

	recreated := &types.User{
		ID:       claims.Subject,
		Username: claims.Username,
		Email:    claims.Email,
		Role:     types.RoleRegular,
	}
	if err := v.store.CreateUser(recreated); err != nil {
		return nil, fmt.Errorf("failed to recreate user %s from claims: %w", claims.Subject, err)
	}
	return recreated, nil
}

// Issue signs a token for user, for use by tests and any local
// development login path that bypasses the OAuth device flow.
func (v *Verifier) Issue(user *types.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Subject:  user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  jwt.ClaimStrings{"mothership"},
			Issuer:    "mothership-server",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.signingKey)
}
