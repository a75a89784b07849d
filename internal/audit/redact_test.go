package audit

import "testing"

func TestRedact(t *testing.T) {
	in := map[string]any{
		"name":          "billing",
		"password":      "hunter2",
		"api_key":       "agk_live_abc",
		"Authorization": "Bearer xyz",
		"refresh_token": "tok",
		"metadata": map[string]any{
			"region":        "eu-1",
			"client_secret": "s3cret",
		},
	}

	out := Redact(in)

	if out["name"] != "billing" {
		t.Errorf("name altered: %v", out["name"])
	}
	for _, key := range []string{"password", "api_key", "Authorization", "refresh_token"} {
		if out[key] != redactedValue {
			t.Errorf("%s = %v, want %s", key, out[key], redactedValue)
		}
	}

	nested, ok := out["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata not a map: %T", out["metadata"])
	}
	if nested["region"] != "eu-1" {
		t.Errorf("nested region altered: %v", nested["region"])
	}
	if nested["client_secret"] != redactedValue {
		t.Errorf("nested secret not redacted: %v", nested["client_secret"])
	}

	// Input must stay untouched.
	if in["password"] != "hunter2" {
		t.Error("Redact mutated its input")
	}
}

func TestRedactNil(t *testing.T) {
	if Redact(nil) != nil {
		t.Fatal("nil input should return nil")
	}
}
