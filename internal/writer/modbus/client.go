// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
)

const defaultTimeout = 2 * time.Second

// EndpointClient writes status blocks to one status memory endpoint.
// Requests are serialized since the unit id lives on the shared handler.
// The first request dials; a failed request closes the socket so the
// next one dials again.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	log     zerolog.Logger
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func NewEndpointClient(cfg Config, log zerolog.Logger) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("status modbus: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
		log:     log.With().Str("endpoint", cfg.Endpoint).Logger(),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters uses FC06 for a single register and FC16 otherwise.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	var err error
	if len(regs) == 1 {
		_, err = c.client.WriteSingleRegister(addr, regs[0])
	} else {
		_, err = c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	}
	if err != nil {
		c.log.Debug().
			Err(err).
			Uint8("unit_id", unitID).
			Uint16("addr", addr).
			Int("qty", len(regs)).
			Msg("status write failed, dropping connection")
		_ = c.handler.Close()
	}
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
