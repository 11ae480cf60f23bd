package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// API asks a JSON HTTP endpoint: GET {base}?company=&title=&hint=.
type API struct {
	name    string
	baseURL string
	client  *httpClient
}

type apiResponse struct {
	Found          *bool  `json:"found"`
	Name           string `json:"name"`
	Contact        string `json:"contact"`
	ContactChannel string `json:"contact_channel"`
}

func NewAPI(name, baseURL string, cfg HTTPConfig, logger *zap.Logger) (*API, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("api lookup source requires a url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("api lookup url: %w", err)
	}
	if name == "" {
		name = "api"
	}

	return &API{name: name, baseURL: baseURL, client: newHTTPClient(cfg, logger)}, nil
}

func (a *API) Name() string { return a.name }

func (a *API) Lookup(ctx context.Context, q Query) (Result, error) {
	params := url.Values{}
	params.Set("company", q.Company)
	params.Set("title", q.Title)
	if q.RecruiterHint != "" {
		params.Set("hint", q.RecruiterHint)
	}

	resp, err := a.client.get(ctx, a.baseURL, params, "application/json")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return TransientFailure(err), nil
	}

	switch {
	case resp.status == http.StatusNotFound || resp.status == http.StatusNoContent:
		return NoData(), nil
	case retryableStatus(resp.status):
		return TransientFailure(badStatus(resp.status)), nil
	case resp.status != http.StatusOK:
		return Result{}, badStatus(resp.status)
	}

	var payload apiResponse
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return Result{}, fmt.Errorf("decode lookup response: %w", err)
	}

	if payload.Found != nil && !*payload.Found {
		return NoData(), nil
	}

	contact := strings.TrimSpace(payload.ContactChannel)
	if contact == "" {
		contact = strings.TrimSpace(payload.Contact)
	}
	if contact == "" {
		return NoData(), nil
	}

	return FoundContact(payload.Name, contact), nil
}
