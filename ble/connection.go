package ble

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ble/ble"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const disconnectTimeout = 5 * time.Second

var (
	successfulConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "home_adapters_ble_successful_connections_total",
	})
	failedConnectionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "home_adapters_ble_failed_connections_total",
	})
	failedReadsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "home_adapters_ble_failed_reads_total",
	})
	disconnectsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "home_adapters_ble_disconnections_total",
	})
)

// Peripheral is a single GATT connection to a device. It is not kept around between scans:
// every Connect() must be paired with a Disconnect().
type Peripheral struct {
	addr    net.HardwareAddr
	client  ble.Client
	profile *ble.Profile
}

func (h *Handle) Connect(ctx context.Context, addr net.HardwareAddr) (*Peripheral, error) {
	c, err := h.dev.Dial(ctx, addr)

	if err != nil {
		failedConnectionsCounter.Inc()
		return nil, fmt.Errorf("failed to connect to device %v: %w", addr, err)
	}

	successfulConnectionsCounter.Inc()
	log.Debug().Stringer("Addr", addr).Msg("ble: connected to device")

	return &Peripheral{
		addr:   addr,
		client: c,
	}, nil
}

func (p *Peripheral) Addr() net.HardwareAddr {
	return p.addr
}

// Read the value of the characteristic identified by uuid. The GATT profile is discovered on the
// first read and reused for the lifetime of the connection.
func (p *Peripheral) Read(uuid UUID) ([]byte, error) {
	if p.profile == nil {
		profile, err := p.client.DiscoverProfile(false)

		if err != nil {
			failedReadsCounter.Inc()
			return nil, fmt.Errorf("cannot discover profile for device: %w", err)
		}

		p.profile = profile
	}

	char, ok := p.profile.Find(ble.NewCharacteristic(uuid)).(*ble.Characteristic)

	if !ok || char == nil {
		failedReadsCounter.Inc()
		return nil, fmt.Errorf("failed to find characteristic with UUID '%v': %w", uuid, ErrInvalidHandle)
	}

	if char.Property & ble.CharRead == 0 {
		return nil, fmt.Errorf("characteristic '%v' does not support reads: %w", uuid, ErrReadNotPerm)
	}

	data, err := p.client.ReadCharacteristic(char)

	if err != nil {
		failedReadsCounter.Inc()
		return nil, fmt.Errorf("failed to read characteristic '%v': %w", uuid, err)
	}

	log.Trace().
		Stringer("Addr", p.addr).
		Stringer("UUID", uuid).
		Hex("Data", data).
		Msg("ble: read characteristic")

	return data, nil
}

// Disconnect cancels the connection and waits (bounded) for the link to go down.
func (p *Peripheral) Disconnect() error {
	err := p.client.CancelConnection()

	select {
	case <-p.client.Disconnected():
	case <-time.After(disconnectTimeout):
		log.Warn().Stringer("Addr", p.addr).Msg("ble: timed out waiting for disconnection")
	}

	disconnectsCounter.Inc()
	log.Debug().Stringer("Addr", p.addr).Err(err).Msg("ble: disconnected from device")

	return err
}
