package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const StateHome = "home"

type Config struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Entity is the state of a single entity as returned by the REST API.
type Entity struct {
	ID          string    `json:"entity_id"`
	State       string    `json:"state"`
	LastChanged time.Time `json:"last_changed"`
	LastUpdated time.Time `json:"last_updated"`
}

// Client reads entity states from a Home Assistant instance using a long-lived access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
	}
}

func (c *Client) State(ctx context.Context, entityID string) (e Entity, err error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/api/states/"+url.PathEscape(entityID),
		nil,
	)
	if err != nil {
		return e, err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return e, fmt.Errorf("failed to fetch state of %q: %w", entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return e, fmt.Errorf("failed to fetch state of %q: unexpected status %d", entityID, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return e, fmt.Errorf("failed to decode state of %q: %w", entityID, err)
	}

	log.Trace().
		Str("Entity", e.ID).
		Str("State", e.State).
		Time("LastUpdated", e.LastUpdated).
		Msg("homeassistant: fetched entity state")

	return e, nil
}
