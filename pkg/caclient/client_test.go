package caclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airanchor/gateway/pkg/gwerrors"
)

func TestSignCSRSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sign" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode("ca-signature-hex")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	sig, err := c.SignCSR(context.Background(), SignRequest{
		DistinguishedName: "CN=test",
		PublicKey:         "abcdef0123456789",
	})
	if err != nil {
		t.Fatalf("SignCSR: %v", err)
	}
	if sig != "ca-signature-hex" {
		t.Fatalf("unexpected signature: %s", sig)
	}
}

func TestSignCSRUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.SignCSR(context.Background(), SignRequest{
		DistinguishedName: "CN=test",
		PublicKey:         "abcdef0123456789",
	})
	if err != gwerrors.ErrCAUnauthorized {
		t.Fatalf("expected ErrCAUnauthorized, got %v", err)
	}
}

func TestSignCSRServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.SignCSR(context.Background(), SignRequest{
		DistinguishedName: "CN=test",
		PublicKey:         "abcdef0123456789",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var caErr *gwerrors.CAUnavailable
	if !asCAUnavailable(err, &caErr) {
		t.Fatalf("expected CAUnavailable, got %v (%T)", err, err)
	}
}

func TestSignCSRValidatesInput(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:1"})
	_, err := c.SignCSR(context.Background(), SignRequest{})
	if err == nil {
		t.Fatal("expected validation error for empty request")
	}
}

func asCAUnavailable(err error, target **gwerrors.CAUnavailable) bool {
	ca, ok := err.(*gwerrors.CAUnavailable)
	if ok {
		*target = ca
	}
	return ok
}
