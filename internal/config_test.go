package internal

import (
	"strings"
	"testing"
)

func TestConfig_EmptyBackendDefaultsAPI(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend = ""
	cfg.Zotero.APIKey = "key"
	cfg.Zotero.UserID = "12345"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty backend should default to api: %v", err)
	}
	if cfg.Backend != BackendAPI {
		t.Errorf("backend = %q, want %q", cfg.Backend, BackendAPI)
	}
}

func TestConfig_InvalidBackend(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid backend should fail validation")
	}
}

func TestConfig_APIBackendRequiresCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend = BackendAPI
	cfg.Zotero.APIKey = ""
	cfg.Zotero.UserID = "12345"
	if err := cfg.Validate(); err == nil {
		t.Fatal("api backend without api key should fail")
	}

	cfg.Zotero.APIKey = "key"
	cfg.Zotero.UserID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("api backend without user id should fail")
	}
}

func TestConfig_DatabaseBackendRequiresPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend = BackendDatabase
	cfg.Database.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("database backend without path should fail")
	}

	cfg.Database.Path = "/home/me/Zotero/zotero.sqlite"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("database backend with path should pass: %v", err)
	}
}

func TestConfig_DatabaseBackendIgnoresZoteroCredentials(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Backend = BackendDatabase
	cfg.Database.Path = "/home/me/Zotero/zotero.sqlite"
	cfg.Zotero = ZoteroConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("database backend must not require API credentials: %v", err)
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_DisabledModeIgnoresToken(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: "leftover"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode with token should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("a stray token must not enable auth in disabled mode")
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Zotero.APIKey = "key"
	cfg.Zotero.UserID = "12345"
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
