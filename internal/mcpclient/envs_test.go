package mcpclient

import "testing"

func TestNewEnvsDropsDisallowedKeys(t *testing.T) {
	e := NewEnvs(map[string]string{
		"PATH":         "/usr/bin",
		"ld_preload":   "evil.so",
		"MY_APP_TOKEN": "ok",
	})
	if _, ok := e.values["PATH"]; ok {
		t.Fatal("expected PATH to be dropped")
	}
	if _, ok := e.values["ld_preload"]; ok {
		t.Fatal("expected case-insensitive drop of ld_preload")
	}
	if e.values["MY_APP_TOKEN"] != "ok" {
		t.Fatal("expected unrelated key to survive")
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("expected valid Envs, got %v", err)
	}
}

func TestEnvsSetRejectsDisallowedKey(t *testing.T) {
	e := NewEnvs(nil)
	if err := e.Set("NODE_OPTIONS", "--inspect"); err == nil {
		t.Fatal("expected Set to reject a disallowed key")
	}
}
