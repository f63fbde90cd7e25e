// internal/reset/registry.go
package reset

import (
	"errors"
	"fmt"
)

// Layout is the register block read from a device and the counter position inside it.
type Layout struct {
	Start         uint16
	Length        uint16
	CounterOffset uint16
}

// CounterAddr is the absolute register address of the counter.
func (l Layout) CounterAddr() uint16 {
	return l.Start + l.CounterOffset
}

// Descriptor is one registered device. Immutable after startup.
type Descriptor struct {
	Code   string
	Host   string
	Port   int
	UnitID uint8
	Layout Layout
}

// Registry is the static, ordered device list.
type Registry struct {
	devices []Descriptor
	index   map[string]int
}

// NewRegistry copies the descriptors and rejects duplicate or empty codes.
func NewRegistry(devices []Descriptor) (*Registry, error) {
	if len(devices) == 0 {
		return nil, errors.New("registry: no devices")
	}

	r := &Registry{
		devices: make([]Descriptor, len(devices)),
		index:   make(map[string]int, len(devices)),
	}
	copy(r.devices, devices)

	for i, d := range r.devices {
		if d.Code == "" {
			return nil, fmt.Errorf("registry: device #%d has no code", i)
		}
		if _, dup := r.index[d.Code]; dup {
			return nil, fmt.Errorf("registry: duplicate device code %q", d.Code)
		}
		if d.Layout.CounterOffset >= d.Layout.Length {
			return nil, fmt.Errorf("registry: device %q counter offset outside block", d.Code)
		}
		r.index[d.Code] = i
	}

	return r, nil
}

// Get looks a device up by code.
func (r *Registry) Get(code string) (Descriptor, bool) {
	i, ok := r.index[code]
	if !ok {
		return Descriptor{}, false
	}
	return r.devices[i], true
}

// All returns the devices in configuration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.devices))
	copy(out, r.devices)
	return out
}

func (r *Registry) Len() int { return len(r.devices) }
