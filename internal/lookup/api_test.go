package lookup

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spigell/recruiter-outreach/internal/ai"
)

func TestAPILookup(t *testing.T) {
	var lastAuth, lastQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		lastQuery = r.URL.RawQuery

		switch r.URL.Query().Get("company") {
		case "Acme":
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			_, _ = gz.Write([]byte(`{"found": true, "name": "Jane", "contact_channel": "jane@acme.com"}`))
			_ = gz.Close()
		case "Initech":
			_, _ = w.Write([]byte(`{"found": false}`))
		case "Hooli":
			w.WriteHeader(http.StatusNoContent)
		case "Busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "Slow":
			w.WriteHeader(http.StatusRequestTimeout)
		case "Garbage":
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	api, err := NewAPI("", srv.URL, HTTPConfig{Token: "secret"}, nil)
	if err != nil {
		t.Fatalf("new api: %v", err)
	}

	res, err := api.Lookup(context.Background(), Query{Company: "Acme", Title: "SWE", RecruiterHint: "Jane"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Found || res.Contact.Channel != "jane@acme.com" || res.Contact.Name != "Jane" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if lastAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", lastAuth)
	}
	if lastQuery != "company=Acme&hint=Jane&title=SWE" {
		t.Fatalf("unexpected query: %s", lastQuery)
	}

	tests := []struct {
		company string
		outcome Outcome
		wantErr bool
	}{
		{company: "Initech", outcome: NotFound},
		{company: "Hooli", outcome: NotFound},
		{company: "Busy", outcome: Transient},
		{company: "Slow", outcome: Transient},
		{company: "Garbage", wantErr: true},
		{company: "Other", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.company, func(t *testing.T) {
			res, err := api.Lookup(context.Background(), Query{Company: tt.company})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s", tt.outcome, res.Outcome)
			}
		})
	}
}

func TestNewAPIRequiresURL(t *testing.T) {
	if _, err := NewAPI("api", " ", HTTPConfig{}, nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

type stubFinder struct {
	contact *ai.Contact
	err     error
}

func (s stubFinder) FindContact(context.Context, ai.ContactRequest) (*ai.Contact, error) {
	return s.contact, s.err
}

func TestAssistantLookup(t *testing.T) {
	tests := []struct {
		name    string
		finder  stubFinder
		outcome Outcome
		wantErr bool
	}{
		{"found", stubFinder{contact: &ai.Contact{Name: "Jane", Channel: "jane@acme.com"}}, Found, false},
		{"no answer", stubFinder{}, NotFound, false},
		{"temporary", stubFinder{err: ai.ErrTemporary}, Transient, false},
		{"permanent", stubFinder{err: errors.New("invalid api key")}, NotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewAssistant("gemini", tt.finder).Lookup(context.Background(), Query{Company: "Acme"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Fatalf("expected %s, got %s", tt.outcome, res.Outcome)
			}
		})
	}
}

func TestHostLimiterNilNeverWaits(t *testing.T) {
	var hl *HostLimiter
	if err := hl.WaitURL(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if NewHostLimiter(0, 1) != nil {
		t.Fatalf("expected nil limiter for zero rate")
	}

	limited := NewHostLimiter(1000, 1)
	if err := limited.WaitURL(context.Background(), "://bad"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
