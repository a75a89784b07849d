package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeIdentityStore struct {
	identities map[string]*Identity
	err        error
	finds      int
}

func (f *fakeIdentityStore) Find(_ context.Context, id string) (*Identity, error) {
	f.finds++
	if f.err != nil {
		return nil, f.err
	}
	identity, ok := f.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (f *fakeIdentityStore) RolesFor(context.Context, string) ([]Role, error) { return nil, nil }
func (f *fakeIdentityStore) AssignRole(context.Context, string, string) error { return nil }
func (f *fakeIdentityStore) RemoveRole(context.Context, string, string) error { return nil }

type fakeRevocationStore struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocationStore) Revoke(_ context.Context, record *RevokedToken) error {
	if f.err != nil {
		return f.err
	}
	if f.revoked == nil {
		f.revoked = make(map[string]bool)
	}
	f.revoked[record.TokenID] = true
	return nil
}

func (f *fakeRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[tokenID], nil
}

func (f *fakeRevocationStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

func activeIdentity(id string) *Identity {
	return &Identity{
		ID:         id,
		Email:      id + "@example.com",
		Roles:      []string{"member"},
		IsActive:   true,
		IsVerified: true,
	}
}

func newTestValidator(t *testing.T, identities *fakeIdentityStore, revocations *fakeRevocationStore, opts ...ValidatorOption) *Validator {
	t.Helper()
	opts = append([]ValidatorOption{WithIssuer("authgrid")}, opts...)
	v, err := NewValidator(string(testSecret), revocations, identities, opts...)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidateHappyPath(t *testing.T) {
	identities := &fakeIdentityStore{identities: map[string]*Identity{"user-42": activeIdentity("user-42")}}
	v := newTestValidator(t, identities, &fakeRevocationStore{})

	session, err := v.Validate(context.Background(), mintToken(t, testSecret, nil))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if session.Identity.ID != "user-42" {
		t.Fatalf("unexpected identity: %s", session.Identity.ID)
	}
	if session.Degraded {
		t.Fatal("session must not be degraded")
	}
}

func TestValidateRevokedButUnexpired(t *testing.T) {
	identities := &fakeIdentityStore{identities: map[string]*Identity{"user-42": activeIdentity("user-42")}}
	revocations := &fakeRevocationStore{}
	v := newTestValidator(t, identities, revocations)

	raw := mintToken(t, testSecret, nil)
	session, err := v.Validate(context.Background(), raw)
	if err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	if err := v.Revoke(context.Background(), session.Claims); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	_, err = v.Validate(context.Background(), raw)
	if code, _ := CodeOf(err); code != CodeTokenRevoked {
		t.Fatalf("expected TOKEN_REVOKED, got %v", err)
	}
}

func TestValidateExpiredButUnrevoked(t *testing.T) {
	identities := &fakeIdentityStore{identities: map[string]*Identity{"user-42": activeIdentity("user-42")}}
	v := newTestValidator(t, identities, &fakeRevocationStore{})

	raw := mintToken(t, testSecret, func(c *jwt.RegisteredClaims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	})
	_, err := v.Validate(context.Background(), raw)
	if code, _ := CodeOf(err); code != CodeTokenExpired {
		t.Fatalf("expected TOKEN_EXPIRED, got %v", err)
	}
}

func TestValidateUnknownIdentity(t *testing.T) {
	v := newTestValidator(t, &fakeIdentityStore{}, &fakeRevocationStore{})
	_, err := v.Validate(context.Background(), mintToken(t, testSecret, nil))
	if code, _ := CodeOf(err); code != CodeIdentityNotFound {
		t.Fatalf("expected IDENTITY_NOT_FOUND, got %v", err)
	}
}

func TestValidateInactiveIdentity(t *testing.T) {
	identity := activeIdentity("user-42")
	identity.IsActive = false
	v := newTestValidator(t, &fakeIdentityStore{identities: map[string]*Identity{"user-42": identity}},
		&fakeRevocationStore{})

	_, err := v.Validate(context.Background(), mintToken(t, testSecret, nil))
	if code, _ := CodeOf(err); code != CodeIdentityNotFound {
		t.Fatalf("expected IDENTITY_NOT_FOUND for inactive identity, got %v", err)
	}
}

func TestValidateStoreDownWithoutFallback(t *testing.T) {
	identities := &fakeIdentityStore{err: errors.New("connection refused")}
	v := newTestValidator(t, identities, &fakeRevocationStore{})

	_, err := v.Validate(context.Background(), mintToken(t, testSecret, nil))
	if code, _ := CodeOf(err); code != CodeIdentityUnavailable {
		t.Fatalf("expected IDENTITY_UNAVAILABLE, got %v", err)
	}
}

func TestValidateDegradedFallback(t *testing.T) {
	identities := &fakeIdentityStore{err: errors.New("connection refused")}
	v := newTestValidator(t, identities, &fakeRevocationStore{}, WithDegradedFallback(true))

	session, err := v.Validate(context.Background(), mintToken(t, testSecret, nil))
	if err != nil {
		t.Fatalf("Validate with fallback: %v", err)
	}
	if !session.Degraded {
		t.Fatal("session must be marked degraded")
	}
	if len(session.Identity.Roles) != 0 {
		t.Fatalf("degraded session must carry no roles, got %v", session.Identity.Roles)
	}
}

func TestValidateRevocationStoreDownWithoutFallback(t *testing.T) {
	identities := &fakeIdentityStore{identities: map[string]*Identity{"user-42": activeIdentity("user-42")}}
	v := newTestValidator(t, identities, &fakeRevocationStore{err: errors.New("timeout")})

	_, err := v.Validate(context.Background(), mintToken(t, testSecret, nil))
	if code, _ := CodeOf(err); code != CodeIdentityUnavailable {
		t.Fatalf("expected IDENTITY_UNAVAILABLE, got %v", err)
	}
}
