// internal/gateway/modbus/client_test.go
package modbus

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
	"github.com/tamzrod/modbus-resetter/internal/logger"
)

// ---- fakes ----

type fakeConn struct {
	connectErr error
	closed     int
}

func (f *fakeConn) Connect() error { return f.connectErr }
func (f *fakeConn) Close() error   { f.closed++; return nil }

// fakeModbus overrides the two calls the gateway uses.
// Any other call panics on the nil embedded interface.
type fakeModbus struct {
	modbus.Client

	readRaw  []byte
	readErr  error
	writeErr error

	readAddr, readQty uint16
	writeAddr         uint16
	writeVal          uint16
}

func (f *fakeModbus) ReadHoldingRegisters(addr, qty uint16) ([]byte, error) {
	f.readAddr, f.readQty = addr, qty
	return f.readRaw, f.readErr
}

func (f *fakeModbus) WriteSingleRegister(addr, value uint16) ([]byte, error) {
	f.writeAddr, f.writeVal = addr, value
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	return []byte{byte(value >> 8), byte(value)}, nil
}

func newTestClient(t *testing.T, cn *fakeConn, mb *fakeModbus) *Client {
	t.Helper()

	c, err := New(Config{
		Device:   "d1",
		Endpoint: "127.0.0.1:502",
		UnitID:   1,
		Start:    100,
		Length:   3,
	}, logger.Nop())
	require.NoError(t, err)

	c.dial = func(Config) (conn, modbus.Client) { return cn, mb }
	return c
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Length: 1}, logger.Nop())
	require.Error(t, err)

	_, err = New(Config{Endpoint: "x:502"}, logger.Nop())
	require.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "10.0.0.1:502", Endpoint("10.0.0.1", 502))
}

func TestConnect_Failure(t *testing.T) {
	cn := &fakeConn{connectErr: io.EOF}
	c := newTestClient(t, cn, &fakeModbus{})

	err := c.Connect(context.Background())

	var ce *gateway.ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.False(t, c.IsConnected())
}

func TestReadRegisters_UnpacksBigEndian(t *testing.T) {
	mb := &fakeModbus{readRaw: []byte{0x00, 0x01, 0x12, 0x34, 0xFF, 0xFF}}
	c := newTestClient(t, &fakeConn{}, mb)

	require.NoError(t, c.Connect(context.Background()))

	regs, err := c.ReadRegisters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 0x1234, 0xFFFF}, regs)
	assert.Equal(t, uint16(100), mb.readAddr)
	assert.Equal(t, uint16(3), mb.readQty)
}

func TestReadRegisters_NotConnected(t *testing.T) {
	c := newTestClient(t, &fakeConn{}, &fakeModbus{})

	_, err := c.ReadRegisters(context.Background())

	var re *gateway.ReadError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, gateway.ErrNotConnected)
}

func TestReadRegisters_TransportFailureDropsConnection(t *testing.T) {
	cn := &fakeConn{}
	c := newTestClient(t, cn, &fakeModbus{readErr: io.ErrUnexpectedEOF})

	require.NoError(t, c.Connect(context.Background()))

	_, err := c.ReadRegisters(context.Background())
	require.Error(t, err)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 1, cn.closed)
}

func TestWriteRegister_ExceptionKeepsConnection(t *testing.T) {
	mb := &fakeModbus{writeErr: &modbus.ModbusError{FunctionCode: 6, ExceptionCode: 2}}
	c := newTestClient(t, &fakeConn{}, mb)

	require.NoError(t, c.Connect(context.Background()))

	err := c.WriteRegister(context.Background(), 102, 0)

	var we *gateway.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, uint16(102), we.Addr)
	assert.True(t, c.IsConnected())
}

func TestWriteRegister_OK(t *testing.T) {
	mb := &fakeModbus{}
	c := newTestClient(t, &fakeConn{}, mb)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.WriteRegister(context.Background(), 102, 0))
	assert.Equal(t, uint16(102), mb.writeAddr)
	assert.Equal(t, uint16(0), mb.writeVal)
}

func TestDisconnect_Idempotent(t *testing.T) {
	cn := &fakeConn{}
	c := newTestClient(t, cn, &fakeModbus{})

	require.NoError(t, c.Disconnect())

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.Equal(t, 1, cn.closed)
}
