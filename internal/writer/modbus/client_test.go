// internal/writer/modbus/client_test.go
package modbus

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-resetter/internal/logger"
)

func TestPackRegisters_BigEndian(t *testing.T) {
	assert.Equal(t, []byte{0x12, 0x34, 0x00, 0xFF}, packRegisters([]uint16{0x1234, 0x00FF}))
	assert.Empty(t, packRegisters(nil))
}

func TestNewEndpointClient(t *testing.T) {
	_, err := NewEndpointClient(Config{}, logger.Nop())
	require.Error(t, err)

	c, err := NewEndpointClient(Config{Endpoint: "127.0.0.1:1502"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, c.handler.Timeout)
	assert.NoError(t, c.Close())
}

func TestWriteRegisters_EmptyIsNoop(t *testing.T) {
	c, err := NewEndpointClient(Config{Endpoint: "127.0.0.1:1"}, logger.Nop())
	require.NoError(t, err)
	assert.NoError(t, c.WriteRegisters(1, 0, nil))
}

func TestWriteRegisters_UnreachableEndpointFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewEndpointClient(Config{Endpoint: addr, Timeout: 200 * time.Millisecond}, logger.Nop())
	require.NoError(t, err)

	assert.Error(t, c.WriteRegisters(1, 0, []uint16{1}))
	assert.Error(t, c.WriteRegisters(1, 0, []uint16{1, 2}))
}
