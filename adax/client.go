package adax

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "net/http"
  "strings"
  "sync"
  "time"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/slices"
  "golang.org/x/oauth2"
)

const (
  DefaultAPIURL = "https://api-1.adax.no/client-api"
  DefaultCacheTTL = 30 * time.Minute
  DefaultRetries = 2

  MinTemperature = 5.0
  MaxTemperature = 35.0
)

var (
  ErrRoomNotFound = errors.New("room not found")
  ErrTemperatureOutOfRange = fmt.Errorf("temperature must be between %v and %v", MinTemperature, MaxTemperature)
)

// StatusError is returned when the API keeps answering with a non-2xx status after all retries.
type StatusError struct {
  Method string
  URL string
  StatusCode int
}

func (e *StatusError) Error() string {
  return fmt.Sprintf("adax: %s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

type Config struct {
  AccountID string `yaml:"account_id"`
  Password string `yaml:"password"`
  APIURL string `yaml:"api_url"`
  CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Client talks to the Adax cloud API. Room data is cached for CacheTTL; writes go straight to the
// API and never touch the cache.
type Client struct {
  accountID string
  password string
  baseURL string
  cacheTTL time.Duration
  retries int

  httpClient *http.Client
  oauth oauth2.Config
  now func() time.Time

  // serializes authentication, held across the token request.
  tokenMu sync.Mutex
  token *oauth2.Token

  // guards the room cache, never held across network calls.
  mu sync.Mutex
  rooms []Room
  lastUpdated time.Time
}

func New(cfg Config, httpClient *http.Client) *Client {
  baseURL := strings.TrimSuffix(cfg.APIURL, "/")
  if baseURL == "" {
    baseURL = DefaultAPIURL
  }

  cacheTTL := cfg.CacheTTL
  if cacheTTL <= 0 {
    cacheTTL = DefaultCacheTTL
  }

  if httpClient == nil {
    httpClient = &http.Client{}
  }

  return &Client{
    accountID: cfg.AccountID,
    password: cfg.Password,
    baseURL: baseURL,
    cacheTTL: cacheTTL,
    retries: DefaultRetries,
    httpClient: httpClient,
    oauth: oauth2.Config{
      Endpoint: oauth2.Endpoint{
        TokenURL: baseURL + "/auth/token",
        AuthStyle: oauth2.AuthStyleInParams,
      },
    },
    now: time.Now,
  }
}

// Rooms returns the room list, refreshing it first if the cache has expired.
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
  if err := c.Update(ctx, false); err != nil {
    return nil, err
  }

  return c.Latest(), nil
}

// Latest returns the cached room list without contacting the API.
func (c *Client) Latest() []Room {
  c.mu.Lock()
  defer c.mu.Unlock()

  return slices.Clone(c.rooms)
}

func (c *Client) Room(ctx context.Context, id int) (Room, error) {
  rooms, err := c.Rooms(ctx)
  if err != nil {
    return Room{}, err
  }

  for _, r := range rooms {
    if r.ID == id {
      return r, nil
    }
  }

  return Room{}, fmt.Errorf("%w: %d", ErrRoomNotFound, id)
}

// Update refreshes the room cache if it has expired, or unconditionally when force is set.
func (c *Client) Update(ctx context.Context, force bool) error {
  c.mu.Lock()
  fresh := !c.lastUpdated.IsZero() && c.now().Sub(c.lastUpdated) < c.cacheTTL
  c.mu.Unlock()

  if fresh && !force {
    return nil
  }

  return c.fetchRooms(ctx)
}

func (c *Client) fetchRooms(ctx context.Context) error {
  body, err := c.request(ctx, http.MethodGet, c.baseURL + "/rest/v1/content/", nil)
  if err != nil {
    return fmt.Errorf("failed to fetch rooms: %w", err)
  }

  var content contentResponse

  if err := json.Unmarshal(body, &content); err != nil {
    return fmt.Errorf("failed to decode rooms: %w", err)
  }

  rooms := content.toRooms()

  c.mu.Lock()
  c.rooms = rooms
  c.lastUpdated = c.now()
  c.mu.Unlock()

  log.Debug().Int("Rooms", len(rooms)).Msg("adax: refreshed rooms")

  return nil
}

// SetRoomTargetTemperature sends a new target temperature for a room. The local cache is not
// updated; callers wanting fresh data follow up with Update(ctx, true).
func (c *Client) SetRoomTargetTemperature(ctx context.Context, roomID int, temperature float64) error {
  payload, err := json.Marshal(controlRequest{
    Rooms: []roomControl{{ID: roomID, TargetTemperature: toCentidegrees(temperature)}},
  })

  if err != nil {
    return err
  }

  if _, err := c.request(ctx, http.MethodPost, c.baseURL + "/rest/v1/control/", payload); err != nil {
    return fmt.Errorf("failed to set target temperature for room %d: %w", roomID, err)
  }

  log.Info().
    Int("RoomID", roomID).
    Float64("TargetTemperature", temperature).
    Msg("adax: target temperature set")

  return nil
}

// SetTemperature validates and applies a new target temperature, then refreshes the room cache.
func (c *Client) SetTemperature(ctx context.Context, roomID int, temperature float64) error {
  if temperature < MinTemperature || temperature > MaxTemperature {
    return fmt.Errorf("%w: got %v", ErrTemperatureOutOfRange, temperature)
  }

  if err := c.SetRoomTargetTemperature(ctx, roomID, temperature); err != nil {
    return err
  }

  return c.Update(ctx, true)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
  c.tokenMu.Lock()
  defer c.tokenMu.Unlock()

  if c.token != nil && c.token.Valid() {
    return c.token.AccessToken, nil
  }

  ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
  token, err := c.oauth.PasswordCredentialsToken(ctx, c.accountID, c.password)

  if err != nil {
    return "", fmt.Errorf("authentication failed: %w", err)
  }

  c.token = token
  return token.AccessToken, nil
}

func (c *Client) discardToken() {
  c.tokenMu.Lock()
  defer c.tokenMu.Unlock()

  c.token = nil
}

// request performs an authenticated call, re-authenticating and retrying up to c.retries times
// when the call fails for any reason.
func (c *Client) request(ctx context.Context, method, url string, payload []byte) (body []byte, err error) {
  for attempt := 0; attempt <= c.retries; attempt += 1 {
    if attempt > 0 {
      log.Warn().
        Err(err).
        Str("URL", url).
        Int("RetriesLeft", c.retries - attempt + 1).
        Msg("adax: request failed, re-authenticating and retrying")
      c.discardToken()
    }

    body, err = c.doRequest(ctx, method, url, payload)

    if err == nil {
      return body, nil
    }

    if ctx.Err() != nil {
      return nil, err
    }
  }

  log.Error().Err(err).Str("URL", url).Msg("adax: request failed, giving up")

  return nil, err
}

func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
  token, err := c.accessToken(ctx)
  if err != nil {
    return nil, err
  }

  var reqBody io.Reader
  if payload != nil {
    reqBody = bytes.NewReader(payload)
  }

  req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
  if err != nil {
    return nil, err
  }

  req.Header.Set("Authorization", "Bearer " + token)
  if payload != nil {
    req.Header.Set("Content-Type", "application/json")
  }

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, err
  }

  defer resp.Body.Close()

  body, err := io.ReadAll(resp.Body)
  if err != nil {
    return nil, err
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return nil, &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode}
  }

  return body, nil
}
