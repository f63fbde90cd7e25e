// internal/gateway/gateway.go

// Package gateway is the device transport boundary.
// Callers see register arrays and typed failures, never protocol detail.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is one connection to one registered device.
// ReadRegisters always reads the device's configured block.
type Gateway interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	ReadRegisters(ctx context.Context) ([]uint16, error)
	WriteRegister(ctx context.Context, addr, value uint16) error
}

// ErrNotConnected is returned by reads and writes issued without a connection.
var ErrNotConnected = errors.New("gateway: not connected")

// ConnectionError means the device was unreachable or the handshake failed.
type ConnectionError struct {
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gateway %s: connect: %v", e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ReadError means the block read failed or returned a malformed response.
type ReadError struct {
	Device string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("gateway %s: read: %v", e.Device, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError means the device rejected the write or never confirmed it.
type WriteError struct {
	Device string
	Addr   uint16
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("gateway %s: write addr=%d: %v", e.Device, e.Addr, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
