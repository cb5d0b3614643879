package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/home-adapters/adax"
	"github.com/robertof/home-adapters/airthings"
	"github.com/robertof/home-adapters/netgear"
	"github.com/robertof/home-adapters/utils"
	"github.com/rs/zerolog/log"
)

type Rooms interface {
	Rooms(ctx context.Context) ([]adax.Room, error)
	Room(ctx context.Context, id int) (adax.Room, error)
	SetTemperature(ctx context.Context, roomID int, temperature float64) error
}

type Wave interface {
	Name() string
	Latest() (airthings.Readings, time.Time)
}

type Rebooter interface {
	Check(ctx context.Context) netgear.CheckResult
	LastTrigger() time.Time
}

// Server exposes the adapters over HTTP. Adapters left nil are not routed.
type Server struct {
	Rooms    Rooms
	Waves    []Wave
	Rebooter Rebooter
	Gatherer prometheus.Gatherer
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.Rooms != nil {
		mux.HandleFunc("GET /adax/rooms", s.listRooms)
		mux.HandleFunc("PUT /adax/rooms/{id}/target-temperature", s.setTargetTemperature)
	}

	if len(s.Waves) > 0 {
		mux.HandleFunc("GET /airthings/{name}", s.waveReadings)
	}

	if s.Rebooter != nil {
		mux.HandleFunc("POST /netgear/check", s.netgearCheck)
	}

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("api: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// upstreamStatus maps an adapter error to the status returned to the client.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, adax.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, adax.ErrTemperatureOutOfRange):
		return http.StatusBadRequest
	case utils.IsContextDone(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.Rooms.Rooms(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("api: cannot list rooms")
		writeError(w, upstreamStatus(err), err)
		return
	}

	if rooms == nil {
		rooms = []adax.Room{}
	}

	writeJSON(w, http.StatusOK, rooms)
}

type targetTemperatureRequest struct {
	Temperature *float64 `json:"temperature"`
}

func (s *Server) setTargetTemperature(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}

	var req targetTemperatureRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Temperature == nil {
		writeError(w, http.StatusBadRequest, errors.New(`body must be {"temperature": <degrees>}`))
		return
	}

	ctx := r.Context()

	if _, err := s.Rooms.Room(ctx, id); err != nil {
		writeError(w, upstreamStatus(err), err)
		return
	}

	if err := s.Rooms.SetTemperature(ctx, id, *req.Temperature); err != nil {
		log.Error().Err(err).Int("RoomID", id).Msg("api: cannot set target temperature")
		writeError(w, upstreamStatus(err), err)
		return
	}

	room, err := s.Rooms.Room(ctx, id)
	if err != nil {
		writeError(w, upstreamStatus(err), err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

type waveResponse struct {
	Name        string             `json:"name"`
	CollectedAt *time.Time         `json:"collected_at"`
	Readings    airthings.Readings `json:"readings"`
}

func (s *Server) waveReadings(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	for _, wave := range s.Waves {
		if wave.Name() != name {
			continue
		}

		readings, ts := wave.Latest()
		resp := waveResponse{Name: name, Readings: readings}

		if !ts.IsZero() {
			resp.CollectedAt = &ts
		}

		if resp.Readings == nil {
			resp.Readings = airthings.Readings{}
		}

		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, http.StatusNotFound, errors.New("unknown device "+strconv.Quote(name)))
}

type checkResponse struct {
	Result      string     `json:"result"`
	LastTrigger *time.Time `json:"last_trigger"`
}

func (s *Server) netgearCheck(w http.ResponseWriter, r *http.Request) {
	result := s.Rebooter.Check(r.Context())
	resp := checkResponse{Result: result.String()}

	if t := s.Rebooter.LastTrigger(); !t.IsZero() {
		resp.LastTrigger = &t
	}

	writeJSON(w, http.StatusOK, resp)
}
