package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTestSourcePollerParsesPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0.42"))
	}))
	defer srv.Close()

	p := NewTestSourcePoller("test-source-0", srv.URL)
	rate, err := p.FetchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := rate.Rat().Float64()
	if f != 0.42 {
		t.Fatalf("got %v want 0.42", f)
	}
}

func TestTestSourcePollerParsesJSONNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("0.77"))
	}))
	defer srv.Close()

	p := NewTestSourcePoller("test-source-0", srv.URL)
	rate, err := p.FetchOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := rate.Rat().Float64()
	if f != 0.77 {
		t.Fatalf("got %v want 0.77", f)
	}
}

func TestTestSourcePollerRejectsNegative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("-0.3"))
	}))
	defer srv.Close()

	p := NewTestSourcePoller("test-source-0", srv.URL)
	if _, err := p.FetchOnce(context.Background()); err == nil {
		t.Fatal("expected negative reading to be rejected")
	}
}

func TestTestSourcePollerRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewTestSourcePoller("test-source-0", srv.URL)
	if _, err := p.FetchOnce(context.Background()); err == nil {
		t.Fatal("expected 500 response to produce an error")
	}
}
