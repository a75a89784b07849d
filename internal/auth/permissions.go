package auth

import (
	"sort"
	"strings"
)

// Wildcard grants every capability in the vocabulary.
const Wildcard = "*"

// Closed vocabulary of dot-namespaced capability tokens. Role mutations are
// validated against this list; anything else (except the wildcard) is rejected.
const (
	PermIdentitiesRead   = "identities.read"
	PermIdentitiesManage = "identities.manage"
	PermRolesRead        = "roles.read"
	PermRolesManage      = "roles.manage"
	PermServicesRead     = "services.read"
	PermServicesRegister = "services.register"
	PermServicesManage   = "services.manage"
	PermServicesDelete   = "services.delete"
	PermHealthRead       = "health.read"
	PermHealthTrigger    = "health.trigger"
	PermAuditRead        = "audit.read"
	PermTokensRevoke     = "tokens.revoke"
	PermDocsRead         = "docs.read"
	PermDocsWrite        = "docs.write"
	PermDocsDelete       = "docs.delete"
)

// Permission describes one capability.
type Permission struct {
	Key         string
	Description string
}

// Vocabulary lists every known permission.
var Vocabulary = []Permission{
	{Key: PermIdentitiesRead, Description: "Read identities and their role assignments"},
	{Key: PermIdentitiesManage, Description: "Manage identities and role assignments"},
	{Key: PermRolesRead, Description: "Read roles and their permission sets"},
	{Key: PermRolesManage, Description: "Create, update and delete roles"},
	{Key: PermServicesRead, Description: "Read registered services"},
	{Key: PermServicesRegister, Description: "Register new services"},
	{Key: PermServicesManage, Description: "Update and toggle registered services"},
	{Key: PermServicesDelete, Description: "Delete registered services"},
	{Key: PermHealthRead, Description: "Read health status and statistics"},
	{Key: PermHealthTrigger, Description: "Trigger on-demand health probes"},
	{Key: PermAuditRead, Description: "Read the audit log"},
	{Key: PermTokensRevoke, Description: "Revoke tokens before expiry"},
	{Key: PermDocsRead, Description: "Read documents"},
	{Key: PermDocsWrite, Description: "Create and update documents"},
	{Key: PermDocsDelete, Description: "Delete documents"},
}

var vocabularyIndex = func() map[string]struct{} {
	idx := make(map[string]struct{}, len(Vocabulary))
	for _, p := range Vocabulary {
		idx[p.Key] = struct{}{}
	}
	return idx
}()

// KnownPermission reports whether key belongs to the closed vocabulary
// (the wildcard counts as known).
func KnownPermission(key string) bool {
	if key == Wildcard {
		return true
	}
	_, ok := vocabularyIndex[key]
	return ok
}

// ValidatePermissions returns every candidate outside the closed vocabulary.
// An empty result means the whole list is acceptable.
func ValidatePermissions(candidates []string) []string {
	var invalid []string
	for _, c := range candidates {
		if !KnownPermission(strings.TrimSpace(c)) {
			invalid = append(invalid, c)
		}
	}
	return invalid
}

// Set is an effective permission set derived from a group of roles.
type Set map[string]struct{}

// Has reports whether required is granted, honouring the wildcard.
func (s Set) Has(required string) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	_, ok := s[required]
	return ok
}

// HasAny reports whether at least one of the required permissions is granted.
func (s Set) HasAny(required ...string) bool {
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// HasAll reports whether every required permission is granted.
func (s Set) HasAll(required ...string) bool {
	for _, r := range required {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// List returns the sorted permission keys in the set.
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Union builds the effective permission set from the active roles only.
// Inactive roles contribute nothing.
func Union(roles []Role) Set {
	set := make(Set)
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		for _, p := range role.Permissions {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			set[p] = struct{}{}
		}
	}
	return set
}
