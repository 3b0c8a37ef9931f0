package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKeys_Authenticate(t *testing.T) {
	keys := Keys{"admin": "canonical", "sil": "sil-key", "blank": ""}

	tests := []struct {
		value     string
		wantAdmin string
		wantOK    bool
	}{
		{"canonical", "admin", true},
		{"sil-key", "sil", true},
		{"", "", false},
		{"nope", "", false},
		{"sil-key ", "", false},
	}
	for _, tt := range tests {
		admin, ok := keys.Authenticate(tt.value)
		if admin != tt.wantAdmin || ok != tt.wantOK {
			t.Errorf("Authenticate(%q) = %q, %v; want %q, %v", tt.value, admin, ok, tt.wantAdmin, tt.wantOK)
		}
	}
}

func TestKeys_Authenticate_noKeys(t *testing.T) {
	if _, ok := (Keys{}).Authenticate("anything"); ok {
		t.Error("empty key set must reject")
	}
	if _, ok := Keys(nil).Authenticate(""); ok {
		t.Error("nil key set must reject")
	}
}

func TestRequireKey(t *testing.T) {
	var gotAdmin string
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		gotAdmin = AdminFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireKey(Keys{"arda": "k"})(next)

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pull", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("code %d", rec.Code)
		}
		if called != 0 {
			t.Error("next must not run")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pull", nil)
		req.Header.Set(Header, "x")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized || rec.Body.String() != "Unauthorized\n" {
			t.Errorf("got %d %q", rec.Code, rec.Body.String())
		}
		if called != 0 {
			t.Error("next must not run")
		}
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/pull", nil)
		req.Header.Set(Header, "k")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || called != 1 {
			t.Fatalf("code %d called %d", rec.Code, called)
		}
		if gotAdmin != "arda" {
			t.Errorf("admin %q", gotAdmin)
		}
	})
}

func TestAdminFromContext_empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if AdminFromContext(req.Context()) != "" {
		t.Fatal("expected empty admin")
	}
}
