package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"authgrid.org/internal/cache"
	"authgrid.org/internal/obs"
)

const identityKeyPrefix = "identity:"

// Session is the result of a successful token validation: the resolved
// identity snapshot plus the verified claims.
type Session struct {
	Identity Identity
	Claims   *Claims
	TokenID  string
	// Degraded marks a session accepted through the degraded-trust fallback:
	// the token verified but the identity store was unreachable, so the
	// identity carries no roles and authorization gates will deny everything
	// permission-based.
	Degraded bool
}

// Validator verifies bearer tokens and resolves the caller's identity.
// Lookup order: signature/structure, revocation list, identity cache,
// identity store. Each step short-circuits on failure.
type Validator struct {
	secret      []byte
	issuer      string
	revocations RevocationStore
	identities  IdentityStore
	cache       cache.Client
	identityTTL time.Duration

	// allowDegraded preserves availability when the identity or revocation
	// store errors: the token is trusted on its signature alone. Off by
	// default; every use is logged and counted.
	allowDegraded bool

	now func() time.Time
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithCache enables the identity snapshot cache.
func WithCache(c cache.Client, ttl time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.cache = c
		if ttl > 0 {
			v.identityTTL = ttl
		}
	}
}

// WithDegradedFallback toggles the availability-over-strictness fallback.
func WithDegradedFallback(allow bool) ValidatorOption {
	return func(v *Validator) { v.allowDegraded = allow }
}

// WithIssuer pins the expected issuer claim.
func WithIssuer(issuer string) ValidatorOption {
	return func(v *Validator) { v.issuer = strings.TrimSpace(issuer) }
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewValidator builds a Validator. The secret is the external issuer's HS256
// signing secret; revocations and identities are required.
func NewValidator(secret string, revocations RevocationStore, identities IdentityStore, opts ...ValidatorOption) (*Validator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if revocations == nil || identities == nil {
		return nil, errors.New("auth: revocation and identity stores are required")
	}
	v := &Validator{
		secret:      []byte(secret),
		revocations: revocations,
		identities:  identities,
		identityTTL: time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate runs the full validation pipeline for a raw bearer token.
func (v *Validator) Validate(ctx context.Context, raw string) (Session, error) {
	claims, err := ParseToken(raw, v.secret, v.issuer)
	if err != nil {
		if code, ok := CodeOf(err); ok {
			obs.CountTokenValidation(strings.ToLower(strings.TrimPrefix(string(code), "TOKEN_")))
		}
		return Session{}, err
	}

	tokenID := claims.TokenID()
	revoked, err := v.revocations.IsRevoked(ctx, tokenID)
	if err != nil {
		return v.degrade(claims, tokenID, "revocation store unavailable", err)
	}
	if revoked {
		obs.CountTokenValidation("revoked")
		return Session{}, NewError(CodeTokenRevoked, "token has been revoked")
	}

	identity, err := v.resolveIdentity(ctx, claims.Subject)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		obs.CountTokenValidation("identity_not_found")
		return Session{}, NewError(CodeIdentityNotFound, "identity not found or inactive")
	default:
		return v.degrade(claims, tokenID, "identity store unavailable", err)
	}

	obs.CountTokenValidation("ok")
	return Session{Identity: *identity, Claims: claims, TokenID: tokenID}, nil
}

// Parse verifies signature and structure only, skipping revocation and
// identity resolution. The revoke endpoint uses it to address tokens other
// than the one presented.
func (v *Validator) Parse(raw string) (*Claims, error) {
	return ParseToken(raw, v.secret, v.issuer)
}

// Revoke marks the token behind claims unusable until its natural expiry and
// drops the subject's cached snapshot.
func (v *Validator) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil {
		return ErrInvalidInput
	}
	record := &RevokedToken{
		TokenID:   claims.TokenID(),
		Subject:   claims.Subject,
		RevokedAt: v.now().UTC(),
	}
	if claims.ExpiresAt != nil {
		record.ExpiresAt = claims.ExpiresAt.Time
	} else {
		record.ExpiresAt = record.RevokedAt.Add(24 * time.Hour)
	}
	if err := v.revocations.Revoke(ctx, record); err != nil {
		return err
	}
	v.Invalidate(ctx, claims.Subject)
	return nil
}

// Invalidate removes the cached identity snapshot for id. Role mutations call
// this; until then a stale snapshot may be served for up to the identity TTL,
// an accepted eventual-consistency window.
func (v *Validator) Invalidate(ctx context.Context, id string) {
	if v.cache == nil {
		return
	}
	_ = v.cache.Delete(ctx, identityKeyPrefix+id)
}

// PurgeRevocations deletes revocation records whose token already expired.
func (v *Validator) PurgeRevocations(ctx context.Context) (int64, error) {
	return v.revocations.PurgeExpired(ctx, v.now().UTC())
}

func (v *Validator) resolveIdentity(ctx context.Context, subject string) (*Identity, error) {
	if v.cache != nil {
		if raw, err := v.cache.Get(ctx, identityKeyPrefix+subject); err == nil {
			var identity Identity
			if err := json.Unmarshal([]byte(raw), &identity); err == nil {
				return &identity, nil
			}
			// Unreadable entries are dropped and reloaded from the store.
			_ = v.cache.Delete(ctx, identityKeyPrefix+subject)
		}
	}

	identity, err := v.identities.Find(ctx, subject)
	if err != nil {
		return nil, err
	}
	if !identity.IsActive {
		return nil, ErrNotFound
	}

	if v.cache != nil {
		if data, err := json.Marshal(identity); err == nil {
			_ = v.cache.Set(ctx, identityKeyPrefix+subject, string(data), v.identityTTL)
		}
	}
	return identity, nil
}

func (v *Validator) degrade(claims *Claims, tokenID, reason string, cause error) (Session, error) {
	if !v.allowDegraded {
		obs.CountTokenValidation("unavailable")
		return Session{}, NewError(CodeIdentityUnavailable, reason)
	}
	obs.CountTokenValidation("degraded")
	obs.LogSecurityEvent("auth.degraded_fallback", map[string]any{
		"degraded_trust": true,
		"subject":        claims.Subject,
		"reason":         reason,
		"cause":          cause.Error(),
	})
	return Session{
		Identity: Identity{ID: claims.Subject, IsActive: true},
		Claims:   claims,
		TokenID:  tokenID,
		Degraded: true,
	}, nil
}
