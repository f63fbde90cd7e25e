// internal/gateway/modbus/client.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
)

// Client implements gateway.Gateway over Modbus TCP (holding registers).
// This adapter is geometry-only: it reads one fixed block and writes single registers.
type Client struct {
	cfg  Config
	dial dialer
	log  zerolog.Logger

	// mu serializes requests and connection changes.
	mu        sync.Mutex
	conn      conn
	client    modbus.Client
	connected bool
}

// Config is minimal transport config.
type Config struct {
	Device   string
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration

	Start  uint16
	Length uint16
}

// Endpoint joins host and port the way net.Dial expects.
func Endpoint(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

type conn interface {
	Connect() error
	Close() error
}

type dialer func(cfg Config) (conn, modbus.Client)

func tcpDialer(cfg Config) (conn, modbus.Client) {
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID
	return h, modbus.NewClient(h)
}

// New creates an unconnected client. Connect is explicit.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus gateway: endpoint required")
	}
	if cfg.Length == 0 {
		return nil, errors.New("modbus gateway: block length must be > 0")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		cfg:  cfg,
		dial: tcpDialer,
		log: log.With().
			Str("device", cfg.Device).
			Str("endpoint", cfg.Endpoint).
			Logger(),
	}, nil
}

// ---- gateway.Gateway ----

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &gateway.ConnectionError{Device: c.cfg.Device, Err: err}
	}

	cn, cli := c.dial(c.cfg)
	if err := cn.Connect(); err != nil {
		_ = cn.Close()
		return &gateway.ConnectionError{Device: c.cfg.Device, Err: err}
	}

	c.conn = cn
	c.client = cli
	c.connected = true

	c.log.Debug().Msg("modbus connected")
	return nil
}

// Disconnect is idempotent; a client that never connected is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) ReadRegisters(ctx context.Context) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, &gateway.ReadError{Device: c.cfg.Device, Err: gateway.ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return nil, &gateway.ReadError{Device: c.cfg.Device, Err: err}
	}

	raw, err := c.client.ReadHoldingRegisters(c.cfg.Start, c.cfg.Length)
	if err != nil {
		c.onErrorLocked(err)
		return nil, &gateway.ReadError{Device: c.cfg.Device, Err: err}
	}
	if len(raw)%2 != 0 {
		return nil, &gateway.ReadError{
			Device: c.cfg.Device,
			Err:    fmt.Errorf("modbus: odd register payload length %d", len(raw)),
		}
	}

	return unpackRegisters(raw), nil
}

func (c *Client) WriteRegister(ctx context.Context, addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return &gateway.WriteError{Device: c.cfg.Device, Addr: addr, Err: gateway.ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return &gateway.WriteError{Device: c.cfg.Device, Addr: addr, Err: err}
	}

	// goburrow verifies the echoed address and value.
	if _, err := c.client.WriteSingleRegister(addr, value); err != nil {
		c.onErrorLocked(err)
		return &gateway.WriteError{Device: c.cfg.Device, Addr: addr, Err: err}
	}
	return nil
}

// ---- internal ----

// onErrorLocked discards the connection on transport death.
// A Modbus exception is a device answer: the link is fine and stays up.
func (c *Client) onErrorLocked(err error) {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return
	}

	c.log.Warn().Err(err).Msg("modbus transport failure, dropping connection")
	_ = c.dropLocked()
}

func (c *Client) dropLocked() error {
	if !c.connected {
		return nil
	}

	err := c.conn.Close()

	c.conn = nil
	c.client = nil
	c.connected = false

	c.log.Debug().Msg("modbus disconnected")
	return err
}

// ---- helpers (pure geometry) ----

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
