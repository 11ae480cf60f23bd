package lookup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/normalize"
	"github.com/spigell/recruiter-outreach/internal/utils"
)

const profileMarker = "linkedin.com/in/"

// Page scrapes the job page itself for a hiring team profile link.
type Page struct {
	name   string
	client *httpClient
}

func NewPage(name string, cfg HTTPConfig, logger *zap.Logger) *Page {
	if name == "" {
		name = "page"
	}
	return &Page{name: name, client: newHTTPClient(cfg, logger)}
}

func (p *Page) Name() string { return p.name }

func (p *Page) Lookup(ctx context.Context, q Query) (Result, error) {
	if !fetchable(q.URL) {
		return NoData(), nil
	}

	resp, err := p.client.get(ctx, q.URL, nil, "text/html")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return TransientFailure(err), nil
	}

	switch {
	case resp.status == http.StatusNotFound || resp.status == http.StatusGone:
		return NoData(), nil
	case retryableStatus(resp.status):
		return TransientFailure(badStatus(resp.status)), nil
	case resp.status != http.StatusOK:
		return Result{}, badStatus(resp.status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.body))
	if err != nil {
		return Result{}, fmt.Errorf("parse job page: %w", err)
	}

	contacts := profileLinks(doc)
	if len(contacts) == 0 {
		return NoData(), nil
	}

	if hint := strings.ToLower(q.RecruiterHint); hint != "" {
		for _, c := range contacts {
			if strings.EqualFold(c.Name, hint) || strings.EqualFold(c.Channel, hint) {
				return FoundContact(c.Name, c.Channel), nil
			}
		}
	}

	return FoundContact(contacts[0].Name, contacts[0].Channel), nil
}

// fetchable rejects links no retry could ever fetch.
func fetchable(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func profileLinks(doc *goquery.Document) []Contact {
	seen := map[string]bool{}

	var contacts []Contact
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !strings.Contains(strings.ToLower(href), profileMarker) {
			return
		}

		if strings.HasPrefix(href, "//") {
			href = "https:" + href
		}

		profile := normalize.CleanURL(href)
		if seen[profile] {
			return
		}
		seen[profile] = true

		name := utils.CleanText(a.Text())
		if name == "" {
			name = utils.CleanText(a.AttrOr("aria-label", ""))
		}

		contacts = append(contacts, Contact{Name: name, Channel: profile})
	})

	return contacts
}
