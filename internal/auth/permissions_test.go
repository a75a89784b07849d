package auth

import (
	"slices"
	"testing"
)

func TestWildcardGrantsEverything(t *testing.T) {
	set := Union([]Role{{Name: "root", Permissions: []string{Wildcard}, IsActive: true}})
	for _, p := range Vocabulary {
		if !set.Has(p.Key) {
			t.Fatalf("wildcard did not grant %s", p.Key)
		}
	}
	if !set.HasAll(PermDocsRead, PermServicesDelete, PermTokensRevoke) {
		t.Fatal("wildcard HasAll failed")
	}
}

func TestUnionSkipsInactiveRoles(t *testing.T) {
	set := Union([]Role{
		{Name: "reader", Permissions: []string{PermDocsRead}, IsActive: true},
		{Name: "destroyer", Permissions: []string{PermDocsDelete}, IsActive: false},
	})
	if !set.Has(PermDocsRead) {
		t.Fatal("active role's permission missing")
	}
	if set.Has(PermDocsDelete) {
		t.Fatal("inactive role's permission leaked into the union")
	}
}

func TestUnionDeduplicates(t *testing.T) {
	set := Union([]Role{
		{Name: "a", Permissions: []string{PermDocsRead, PermDocsWrite}, IsActive: true},
		{Name: "b", Permissions: []string{PermDocsRead, PermHealthRead}, IsActive: true},
	})
	want := []string{PermDocsRead, PermDocsWrite, PermHealthRead}
	if got := set.List(); !slices.Equal(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
}

// An editor with docs.read must not be able to docs.delete.
func TestEditorScenario(t *testing.T) {
	set := Union([]Role{
		{Name: "editor", Permissions: []string{PermDocsRead, PermDocsWrite}, IsActive: true},
	})
	if !set.Has(PermDocsRead) || !set.Has(PermDocsWrite) {
		t.Fatal("editor lost granted permissions")
	}
	if set.Has(PermDocsDelete) {
		t.Fatal("editor must not hold docs.delete")
	}
	if set.HasAll(PermDocsRead, PermDocsDelete) {
		t.Fatal("HasAll must fail when one permission is missing")
	}
	if !set.HasAny(PermDocsDelete, PermDocsRead) {
		t.Fatal("HasAny must pass when one permission is held")
	}
}

func TestValidatePermissions(t *testing.T) {
	invalid := ValidatePermissions([]string{PermDocsRead, "docs.publish", Wildcard, "bogus"})
	want := []string{"docs.publish", "bogus"}
	if !slices.Equal(invalid, want) {
		t.Fatalf("invalid = %v, want %v", invalid, want)
	}
	if got := ValidatePermissions([]string{PermRolesManage}); got != nil {
		t.Fatalf("expected no invalid entries, got %v", got)
	}
}

func TestKnownPermission(t *testing.T) {
	if !KnownPermission(Wildcard) {
		t.Fatal("wildcard must count as known")
	}
	if KnownPermission("identities.write") {
		t.Fatal("identities.write is outside the vocabulary")
	}
}
