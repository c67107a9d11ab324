package discovery

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// EvidenceValidator is the anti-hallucination gate for web-sourced leads: a
// lead only survives when one of its claimed pages can be fetched and the
// page text fuzzy-confirms the name together with the title or the company.
type EvidenceValidator struct {
	Client *http.Client
	Logger *slog.Logger

	// Domains whose pages are never fetched (major social networks block
	// anonymous fetches and would only produce false rejections).
	DeniedDomains []string

	NameThreshold  float64
	FieldThreshold float64
	SnippetRadius  int
	FetchDelay     time.Duration
	MaxBodyBytes   int64
}

var defaultDeniedDomains = []string{
	"linkedin.com",
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
}

func NewEvidenceValidator(logger *slog.Logger) *EvidenceValidator {
	return &EvidenceValidator{
		Client:         &http.Client{Timeout: 15 * time.Second},
		Logger:         logger,
		DeniedDomains:  defaultDeniedDomains,
		NameThreshold:  0.85,
		FieldThreshold: 0.75,
		SnippetRadius:  300,
		FetchDelay:     500 * time.Millisecond,
		MaxBodyBytes:   1 << 20,
	}
}

// Validate tries the lead's claimed URLs in order, first match wins. URLs are
// fetched sequentially with a fixed delay between them; fetch failures and
// non-matches just move on to the next URL. It returns the validated URL and
// the evidence snippet, or ok=false when no URL confirms the lead.
func (v *EvidenceValidator) Validate(ctx context.Context, lead RawLead) (ok bool, sourceURL, snippet string) {
	for i, raw := range lead.SourceURLs {
		if v.deniedDomain(raw) {
			continue
		}
		if i > 0 {
			select {
			case <-time.After(v.FetchDelay):
			case <-ctx.Done():
				return false, "", ""
			}
		}

		text, err := v.fetchText(ctx, raw)
		if err != nil {
			v.Logger.Debug("evidence fetch failed", "url", raw, "error", err)
			continue
		}

		if snip, matched := v.confirm(text, lead); matched {
			return true, raw, snip
		}
	}
	return false, "", ""
}

func (v *EvidenceValidator) deniedDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range v.DeniedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// fetchText downloads a page and extracts its visible text. Anything that is
// not a 200 text response counts as "this URL does not validate".
func (v *EvidenceValidator) fetchText(ctx context.Context, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; talent-scout/1.0)")

	resp, err := v.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errStatus(resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") && !strings.Contains(ct, "xhtml") {
		return "", errNonText(ct)
	}

	body := io.LimitReader(resp.Body, v.MaxBodyBytes)
	if strings.Contains(ct, "text/plain") {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return collapseSpace(string(data)), nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return collapseSpace(doc.Text()), nil
}

// confirm applies the fuzzy thresholds: the name must match, and the title or
// the company must match too. The snippet is a bounded window around the
// matched name. Lowering is ASCII-only so every byte offset into lower is
// valid in text (full Unicode case folding can change byte lengths).
func (v *EvidenceValidator) confirm(text string, lead RawLead) (string, bool) {
	lower := lowerASCII(text)

	nameRatio, nameOff := bestMatch(lower, strings.ToLower(lead.FullName))
	if nameRatio < v.NameThreshold || nameOff < 0 {
		return "", false
	}

	titleRatio, _ := bestMatch(lower, strings.ToLower(lead.Title))
	companyRatio, _ := bestMatch(lower, strings.ToLower(lead.Company))
	if titleRatio < v.FieldThreshold && companyRatio < v.FieldThreshold {
		return "", false
	}

	start := nameOff - v.SnippetRadius
	if start < 0 {
		start = 0
	}
	end := nameOff + v.SnippetRadius
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start = end
	}
	return strings.TrimSpace(text[start:end]), true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// lowerASCII lowercases A-Z only, so len(lowerASCII(s)) == len(s) and byte
// offsets carry over to the original string.
func lowerASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

type errStatus int

func (e errStatus) Error() string { return "unexpected status " + http.StatusText(int(e)) }

type errNonText string

func (e errNonText) Error() string { return "non-text content type " + string(e) }
