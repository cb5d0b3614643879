package adax

import (
  "context"
  "encoding/json"
  "errors"
  "net/http"
  "net/http/httptest"
  "reflect"
  "sync"
  "testing"
  "time"
)

const testContent = `{
  "rooms": [
    {"id": 7, "homeId": 3, "name": "Living room", "temperature": 2134, "targetTemperature": 2200},
    {"id": 8, "homeId": 3, "name": "Bedroom", "targetTemperature": 1800}
  ]
}`

type FakeAPI struct {
  mu sync.Mutex

  tokenRequests int
  contentRequests int
  controlRequests []controlRequest
  authHeaders []string

  // status codes returned by successive content requests, 200 once exhausted.
  contentStatuses []int
  // status codes returned by successive token requests, 200 once exhausted.
  tokenStatuses []int
}

func nextStatus(statuses *[]int) int {
  if len(*statuses) == 0 {
    return http.StatusOK
  }

  s := (*statuses)[0]
  *statuses = (*statuses)[1:]
  return s
}

func (f *FakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
  f.mu.Lock()
  defer f.mu.Unlock()

  switch r.URL.Path {
  case "/auth/token":
    f.tokenRequests += 1

    if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "password" ||
      r.PostForm.Get("username") != "12345" || r.PostForm.Get("password") != "secret" {
      w.WriteHeader(http.StatusBadRequest)
      return
    }

    if status := nextStatus(&f.tokenStatuses); status != http.StatusOK {
      w.WriteHeader(status)
      return
    }

    w.Header().Set("Content-Type", "application/json")
    json.NewEncoder(w).Encode(map[string]any{
      "access_token": "token-" + string(rune('0' + f.tokenRequests)),
      "token_type": "Bearer",
      "expires_in": 3600,
    })
  case "/rest/v1/content/":
    f.contentRequests += 1
    f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))

    if status := nextStatus(&f.contentStatuses); status != http.StatusOK {
      w.WriteHeader(status)
      return
    }

    w.Header().Set("Content-Type", "application/json")
    w.Write([]byte(testContent))
  case "/rest/v1/control/":
    var req controlRequest

    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
      w.WriteHeader(http.StatusBadRequest)
      return
    }

    f.controlRequests = append(f.controlRequests, req)
    w.WriteHeader(http.StatusOK)
  default:
    w.WriteHeader(http.StatusNotFound)
  }
}

type fakeClock struct {
  t time.Time
}

func (c *fakeClock) Now() time.Time {
  return c.t
}

func newTestClient(t *testing.T, api *FakeAPI) (*Client, *fakeClock) {
  t.Helper()

  srv := httptest.NewServer(api)
  t.Cleanup(srv.Close)

  c := New(Config{AccountID: "12345", Password: "secret", APIURL: srv.URL}, srv.Client())
  clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
  c.now = clock.Now

  return c, clock
}

func TestRooms(t *testing.T) {
  api := &FakeAPI{}
  c, _ := newTestClient(t, api)

  got, err := c.Rooms(context.Background())

  if err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  want := []Room{
    {ID: 7, HomeID: 3, Name: "Living room", Temperature: 21.34, TargetTemperature: 22},
    {ID: 8, HomeID: 3, Name: "Bedroom", Temperature: 0, TargetTemperature: 18},
  }

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Rooms(): got %+v, wanted %+v", got, want)
  }

  if got[0].UniqueID() != "3_7" {
    t.Fatalf("UniqueID(): got %q, wanted 3_7", got[0].UniqueID())
  }

  if api.authHeaders[0] != "Bearer token-1" {
    t.Fatalf("got Authorization header %q, wanted bearer token", api.authHeaders[0])
  }
}

func TestRooms_CachedWithinTTL(t *testing.T) {
  api := &FakeAPI{}
  c, clock := newTestClient(t, api)
  ctx := context.Background()

  if _, err := c.Rooms(ctx); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  clock.t = clock.t.Add(29 * time.Minute)

  if _, err := c.Rooms(ctx); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  if api.contentRequests != 1 {
    t.Fatalf("got %d content requests within the cache window, wanted 1", api.contentRequests)
  }

  clock.t = clock.t.Add(time.Minute)

  if _, err := c.Rooms(ctx); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  if api.contentRequests != 2 {
    t.Fatalf("got %d content requests after the cache window, wanted 2", api.contentRequests)
  }

  if api.tokenRequests != 1 {
    t.Fatalf("got %d token requests, wanted the token to be reused", api.tokenRequests)
  }
}

func TestUpdate_Force(t *testing.T) {
  api := &FakeAPI{}
  c, _ := newTestClient(t, api)
  ctx := context.Background()

  for i := 0; i < 3; i += 1 {
    if err := c.Update(ctx, true); err != nil {
      t.Fatalf("Update(true) got error: %v", err)
    }
  }

  if api.contentRequests != 3 {
    t.Fatalf("got %d content requests, wanted one per forced update", api.contentRequests)
  }
}

func TestSetRoomTargetTemperature(t *testing.T) {
  cases := []struct {
    temperature float64
    want string
  }{
    {21.5, "2150"},
    {21.456, "2146"},
    {7, "700"},
    {19.999, "2000"},
  }

  for _, tc := range cases {
    api := &FakeAPI{}
    c, _ := newTestClient(t, api)

    if err := c.SetRoomTargetTemperature(context.Background(), 7, tc.temperature); err != nil {
      t.Fatalf("SetRoomTargetTemperature(%v) got error: %v", tc.temperature, err)
    }

    want := []controlRequest{{Rooms: []roomControl{{ID: 7, TargetTemperature: tc.want}}}}

    if !reflect.DeepEqual(api.controlRequests, want) {
      t.Fatalf("SetRoomTargetTemperature(%v): sent %+v, wanted %+v", tc.temperature, api.controlRequests, want)
    }

    if api.contentRequests != 0 {
      t.Fatalf("SetRoomTargetTemperature(%v) refreshed the room cache", tc.temperature)
    }
  }
}

func TestSetTemperature_RefreshesRooms(t *testing.T) {
  api := &FakeAPI{}
  c, _ := newTestClient(t, api)
  ctx := context.Background()

  if _, err := c.Rooms(ctx); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  if err := c.SetTemperature(ctx, 8, 20); err != nil {
    t.Fatalf("SetTemperature() got error: %v", err)
  }

  if len(api.controlRequests) != 1 || api.contentRequests != 2 {
    t.Fatalf("got %d control and %d content requests, wanted 1 and 2",
      len(api.controlRequests), api.contentRequests)
  }
}

func TestSetTemperature_OutOfRange(t *testing.T) {
  api := &FakeAPI{}
  c, _ := newTestClient(t, api)

  for _, temp := range []float64{4.9, 35.1, -10} {
    err := c.SetTemperature(context.Background(), 7, temp)

    if !errors.Is(err, ErrTemperatureOutOfRange) {
      t.Errorf("SetTemperature(%v): got error %v, wanted %v", temp, err, ErrTemperatureOutOfRange)
    }
  }

  if len(api.controlRequests) != 0 || api.tokenRequests != 0 {
    t.Fatalf("SetTemperature() with invalid temperatures reached the API")
  }
}

func TestRoom_NotFound(t *testing.T) {
  c, _ := newTestClient(t, &FakeAPI{})

  if _, err := c.Room(context.Background(), 99); !errors.Is(err, ErrRoomNotFound) {
    t.Fatalf("Room(99): got error %v, wanted %v", err, ErrRoomNotFound)
  }

  r, err := c.Room(context.Background(), 8)
  if err != nil || r.Name != "Bedroom" {
    t.Fatalf("Room(8): got (%+v, %v)", r, err)
  }
}

func TestRequest_ReauthenticatesOnFailure(t *testing.T) {
  api := &FakeAPI{contentStatuses: []int{http.StatusUnauthorized}}
  c, _ := newTestClient(t, api)

  if _, err := c.Rooms(context.Background()); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  if api.contentRequests != 2 || api.tokenRequests != 2 {
    t.Fatalf("got %d content and %d token requests, wanted 2 and 2", api.contentRequests, api.tokenRequests)
  }

  wantHeaders := []string{"Bearer token-1", "Bearer token-2"}
  if !reflect.DeepEqual(api.authHeaders, wantHeaders) {
    t.Fatalf("got Authorization headers %v, wanted %v", api.authHeaders, wantHeaders)
  }
}

func TestRequest_RetriesAuthenticationFailures(t *testing.T) {
  api := &FakeAPI{tokenStatuses: []int{http.StatusInternalServerError}}
  c, _ := newTestClient(t, api)

  if _, err := c.Rooms(context.Background()); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  if api.tokenRequests != 2 || api.contentRequests != 1 {
    t.Fatalf("got %d token and %d content requests, wanted 2 and 1", api.tokenRequests, api.contentRequests)
  }
}

func TestRequest_GivesUpAfterRetries(t *testing.T) {
  api := &FakeAPI{contentStatuses: []int{500, 502, 503, 200}}
  c, _ := newTestClient(t, api)

  _, err := c.Rooms(context.Background())

  var statusErr *StatusError
  if !errors.As(err, &statusErr) || statusErr.StatusCode != 503 {
    t.Fatalf("Rooms(): got error %v, wanted StatusError 503", err)
  }

  if api.contentRequests != 3 || api.tokenRequests != 3 {
    t.Fatalf("got %d content and %d token requests, wanted 3 and 3", api.contentRequests, api.tokenRequests)
  }

  if rooms := c.Latest(); len(rooms) != 0 {
    t.Fatalf("Latest() after failure: got %v, wanted no rooms", rooms)
  }

  // a failed refresh does not start a new cache window.
  if _, err := c.Rooms(context.Background()); err != nil {
    t.Fatalf("Rooms() got error: %v", err)
  }

  if api.contentRequests != 4 {
    t.Fatalf("got %d content requests, wanted 4", api.contentRequests)
  }
}

func TestRequest_TransportError(t *testing.T) {
  srv := httptest.NewServer(http.NotFoundHandler())
  url := srv.URL
  srv.Close()

  c := New(Config{AccountID: "12345", Password: "secret", APIURL: url}, nil)

  if _, err := c.Rooms(context.Background()); err == nil {
    t.Fatalf("Rooms() against a closed server: got no error")
  }
}

func TestLatest_DoesNotWaitForAuthentication(t *testing.T) {
  started := make(chan struct{})
  release := make(chan struct{})
  var once sync.Once

  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    switch r.URL.Path {
    case "/auth/token":
      once.Do(func() { close(started) })
      <-release

      w.Header().Set("Content-Type", "application/json")
      json.NewEncoder(w).Encode(map[string]any{
        "access_token": "token",
        "token_type": "Bearer",
        "expires_in": 3600,
      })
    case "/rest/v1/content/":
      w.Header().Set("Content-Type", "application/json")
      w.Write([]byte(testContent))
    default:
      w.WriteHeader(http.StatusNotFound)
    }
  }))
  t.Cleanup(srv.Close)

  c := New(Config{AccountID: "12345", Password: "secret", APIURL: srv.URL}, srv.Client())

  done := make(chan error, 1)

  go func() {
    done <- c.Update(context.Background(), true)
  }()

  <-started

  got := make(chan []Room, 1)

  go func() {
    got <- c.Latest()
  }()

  select {
  case rooms := <-got:
    if len(rooms) != 0 {
      t.Errorf("Latest() during authentication: got %v, wanted no rooms", rooms)
    }
  case <-time.After(2 * time.Second):
    t.Errorf("Latest() blocked while authentication was in flight")
  }

  close(release)

  if err := <-done; err != nil {
    t.Fatalf("Update() got error: %v", err)
  }

  if rooms := c.Latest(); len(rooms) != 2 {
    t.Fatalf("Latest() after update: got %v, wanted 2 rooms", rooms)
  }
}
