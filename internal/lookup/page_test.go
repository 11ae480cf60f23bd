package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const jobPage = `<html><body>
<h1>Data Analyst</h1>
<div class="hiring-team">
  <a href="https://www.linkedin.com/company/acme">Acme</a>
  <a href="https://www.linkedin.com/in/jane-doe/?trk=public">  Jane   Doe </a>
  <a href="https://www.linkedin.com/in/jane-doe/">Jane Doe</a>
  <a href="//www.linkedin.com/in/bob-roe" aria-label="Bob Roe"></a>
</div>
</body></html>`

func TestPageLookup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(jobPage))
	})
	mux.HandleFunc("/jobs/empty", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
	})
	mux.HandleFunc("/jobs/busy", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/jobs/down", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/jobs/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	page := NewPage("", HTTPConfig{}, nil)

	tests := []struct {
		name        string
		query       Query
		outcome     Outcome
		contact     string
		contactName string
		wantErr     bool
	}{
		{name: "first profile", query: Query{URL: srv.URL + "/jobs/1"}, outcome: Found, contact: "https://www.linkedin.com/in/jane-doe", contactName: "Jane Doe"},
		{name: "hint picks profile", query: Query{URL: srv.URL + "/jobs/1", RecruiterHint: "bob roe"}, outcome: Found, contact: "https://www.linkedin.com/in/bob-roe", contactName: "Bob Roe"},
		{name: "no profile", query: Query{URL: srv.URL + "/jobs/empty"}, outcome: NotFound},
		{name: "missing page", query: Query{URL: srv.URL + "/jobs/404"}, outcome: NotFound},
		{name: "no url", query: Query{Company: "Acme"}, outcome: NotFound},
		{name: "rate limited", query: Query{URL: srv.URL + "/jobs/busy"}, outcome: Transient},
		{name: "server error", query: Query{URL: srv.URL + "/jobs/down"}, outcome: Transient},
		{name: "forbidden", query: Query{URL: srv.URL + "/jobs/forbidden"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := page.Lookup(context.Background(), tt.query)
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
			if res.Contact.Channel != tt.contact || res.Contact.Name != tt.contactName {
				t.Fatalf("unexpected contact: %+v", res.Contact)
			}
		})
	}
}

func TestPageNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res, err := NewPage("page", HTTPConfig{}, nil).Lookup(context.Background(), Query{URL: url + "/jobs/1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != Transient || res.Err == nil {
		t.Fatalf("expected transient outcome with cause, got %+v", res)
	}
}

func TestPageUnfetchableURLIsNotFound(t *testing.T) {
	page := NewPage("page", HTTPConfig{}, nil)
	for _, raw := range []string{"", "://bad", "not a url", "ftp://example.com/jobs/1", "https://"} {
		res, err := page.Lookup(context.Background(), Query{URL: raw})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", raw, err)
		}
		if res.Outcome != NotFound {
			t.Fatalf("%q: expected not found, got %+v", raw, res)
		}
	}
}
