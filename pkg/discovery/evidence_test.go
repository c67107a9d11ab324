package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testValidator(t *testing.T) *EvidenceValidator {
	t.Helper()
	v := NewEvidenceValidator(slog.Default())
	v.FetchDelay = 0
	return v
}

func testPageServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateConfirmsNameAndTitle(t *testing.T) {
	srv := testPageServer(t, map[string]string{
		"/team": `<html><body>
			<h1>Our Team</h1>
			<p>Jane Doe is our VP Engineering and loves distributed systems.</p>
			<script>ignore();</script>
		</body></html>`,
	})

	lead := RawLead{
		FullName:   "Jane Doe",
		Title:      "VP Engineering",
		Company:    "Acme Robotics", // not on the page; title match must suffice
		Kind:       SourceWeb,
		SourceURLs: []string{srv.URL + "/team"},
	}

	ok, url, snippet := testValidator(t).Validate(context.Background(), lead)
	if !ok {
		t.Fatal("expected lead to validate")
	}
	if url != srv.URL+"/team" {
		t.Errorf("url = %q", url)
	}
	if snippet == "" || !strings.Contains(snippet, "Jane Doe") {
		t.Errorf("snippet = %q, want it to contain the name", snippet)
	}
	if strings.Contains(snippet, "ignore()") {
		t.Errorf("snippet contains script content: %q", snippet)
	}
}

func TestValidateRejectsWhenNameMissing(t *testing.T) {
	srv := testPageServer(t, map[string]string{
		"/page": `<html><body>A generic page about VP Engineering roles at Acme Robotics.</body></html>`,
	})

	lead := RawLead{
		FullName:   "Jane Doe",
		Title:      "VP Engineering",
		Company:    "Acme Robotics",
		Kind:       SourceWeb,
		SourceURLs: []string{srv.URL + "/page"},
	}

	if ok, _, _ := testValidator(t).Validate(context.Background(), lead); ok {
		t.Error("expected lead to be rejected when the name is absent")
	}
}

func TestValidateRejectsOn404(t *testing.T) {
	srv := testPageServer(t, nil)

	lead := RawLead{
		FullName:   "Jane Doe",
		Title:      "VP Engineering",
		Kind:       SourceWeb,
		SourceURLs: []string{srv.URL + "/missing"},
	}

	if ok, _, _ := testValidator(t).Validate(context.Background(), lead); ok {
		t.Error("expected lead with only a 404 source to be rejected")
	}
}

func TestValidateFallsThroughToNextURL(t *testing.T) {
	srv := testPageServer(t, map[string]string{
		"/good": `<html><body>Jane Doe, VP Engineering at Acme Robotics.</body></html>`,
	})

	lead := RawLead{
		FullName:   "Jane Doe",
		Title:      "VP Engineering",
		Company:    "Acme Robotics",
		Kind:       SourceWeb,
		SourceURLs: []string{srv.URL + "/missing", srv.URL + "/good"},
	}

	ok, url, _ := testValidator(t).Validate(context.Background(), lead)
	if !ok {
		t.Fatal("expected second URL to validate")
	}
	if url != srv.URL+"/good" {
		t.Errorf("url = %q, want the second URL", url)
	}
}

func TestValidateRejectsNonTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("Jane Doe VP Engineering Acme Robotics"))
	}))
	t.Cleanup(srv.Close)

	lead := RawLead{
		FullName:   "Jane Doe",
		Title:      "VP Engineering",
		Kind:       SourceWeb,
		SourceURLs: []string{srv.URL},
	}

	if ok, _, _ := testValidator(t).Validate(context.Background(), lead); ok {
		t.Error("expected non-text content to be rejected")
	}
}

func TestConfirmHandlesMultibyteText(t *testing.T) {
	v := testValidator(t)

	// U+023A's lowercase form (U+2C65) is longer in UTF-8, so full-Unicode
	// lowering would desynchronize match offsets from the page text.
	text := strings.Repeat("Ⱥ ", 400) + "Jane Doe VP Engineering at Acme"
	lead := RawLead{
		FullName: "Jane Doe",
		Title:    "VP Engineering",
		Company:  "Acme",
		Kind:     SourceWeb,
	}

	snippet, ok := v.confirm(text, lead)
	if !ok {
		t.Fatal("expected confirmation on multibyte page")
	}
	if !strings.Contains(snippet, "Jane Doe") {
		t.Errorf("snippet = %q, want it to contain the name", snippet)
	}
}

func TestValidateSkipsDeniedDomains(t *testing.T) {
	v := testValidator(t)

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.linkedin.com/in/janedoe", true},
		{"https://linkedin.com/in/janedoe", true},
		{"https://x.com/janedoe", true},
		{"https://acme-robotics.com/team", false},
		{"https://sublinkedin.company.com/page", false},
		{"://bad url", true},
	}
	for _, tt := range tests {
		if got := v.deniedDomain(tt.url); got != tt.want {
			t.Errorf("deniedDomain(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	// A lead whose only source is denied never validates and never fetches.
	lead := RawLead{
		FullName:   "Jane Doe",
		Title:      "VP Engineering",
		Kind:       SourceWeb,
		SourceURLs: []string{"https://www.linkedin.com/in/janedoe"},
	}
	if ok, _, _ := v.Validate(context.Background(), lead); ok {
		t.Error("expected denied-domain-only lead to be rejected")
	}
}
