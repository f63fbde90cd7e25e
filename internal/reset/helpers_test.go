// internal/reset/helpers_test.go
package reset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
	"github.com/tamzrod/modbus-resetter/internal/logger"
	"github.com/tamzrod/modbus-resetter/internal/schedule"
)

// ---- fake gateway ----

var errLink = errors.New("link down")

// fakeGateway is an in-memory device holding one register block.
type fakeGateway struct {
	mu sync.Mutex

	layout    Layout
	regs      []uint16
	connected bool

	connectErr  error // every connect fails
	readErr     error // every read fails
	failReads   int   // first n reads fail
	writeErr    error
	ignoreWrite bool // write acknowledged but not applied
	shortRead   bool
	panicOnRead bool

	// blockRead, when set, is awaited inside every read.
	blockRead   chan struct{}
	readEntered chan struct{}

	connects int
	reads    int
	writes   int
	readAt   []time.Time
	written  []uint16 // addresses
}

func newFakeGateway(counter uint16) *fakeGateway {
	l := Layout{Start: 100, Length: 4, CounterOffset: 2}
	regs := make([]uint16, l.Length)
	regs[l.CounterOffset] = counter
	return &fakeGateway{layout: l, regs: regs, connected: true}
}

func (f *fakeGateway) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeGateway) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeGateway) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeGateway) ReadRegisters(ctx context.Context) ([]uint16, error) {
	f.mu.Lock()
	block, entered := f.blockRead, f.readEntered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	f.readAt = append(f.readAt, time.Now())

	if f.panicOnRead {
		panic("driver bug")
	}
	if !f.connected {
		return nil, &gateway.ReadError{Device: "fake", Err: gateway.ErrNotConnected}
	}
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.failReads > 0 {
		f.failReads--
		return nil, errLink
	}
	if f.shortRead {
		return f.regs[:1], nil
	}

	out := make([]uint16, len(f.regs))
	copy(out, f.regs)
	return out, nil
}

func (f *fakeGateway) WriteRegister(_ context.Context, addr, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes++
	f.written = append(f.written, addr)

	if f.writeErr != nil {
		return f.writeErr
	}
	if !f.ignoreWrite {
		f.regs[addr-f.layout.Start] = value
	}
	return nil
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeGateway) counts() (connects, reads, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.reads, f.writes
}

func (f *fakeGateway) counter() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[f.layout.CounterOffset]
}

// ---- fake clock ----

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// ---- recording observer ----

type recorder struct {
	mu       sync.Mutex
	attempts []AttemptEvent
	cycles   []CycleResult
}

func (r *recorder) AttemptFinished(_ context.Context, ev AttemptEvent) {
	r.mu.Lock()
	r.attempts = append(r.attempts, ev)
	r.mu.Unlock()
}

func (r *recorder) CycleFinished(_ context.Context, res CycleResult) {
	r.mu.Lock()
	r.cycles = append(r.cycles, res)
	r.mu.Unlock()
}

// ---- memory guard store ----

type memGuard struct {
	mu   sync.Mutex
	date string
	err  error
}

func (m *memGuard) LoadLastResetDate(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.date, m.err
}

func (m *memGuard) SaveLastResetDate(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.date = date
	return m.err
}

// ---- builders ----

func testPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:    maxRetries,
		RetryDelay:    5 * time.Millisecond,
		ConnectSettle: time.Millisecond,
		WriteSettle:   time.Millisecond,
	}
}

func descriptor(code string, gw *fakeGateway) Descriptor {
	return Descriptor{Code: code, Host: "127.0.0.1", Port: 502, UnitID: 1, Layout: gw.layout}
}

func newTestWorker(t *testing.T, code string, gw *fakeGateway, p Policy, clk Clock, obs Observer) *Worker {
	t.Helper()

	w, err := NewWorker(WorkerConfig{
		Device:   descriptor(code, gw),
		Gateway:  gw,
		Policy:   p,
		Clock:    clk,
		Observer: obs,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	return w
}

type fleet struct {
	coord    *Coordinator
	gateways map[string]*fakeGateway
	clock    *fixedClock
	rec      *recorder
	loc      *time.Location
}

// newFleet builds a coordinator over fake devices with a 16:24 window.
func newFleet(t *testing.T, loc *time.Location, maxRetries int, guard GuardStore, codes ...string) *fleet {
	t.Helper()

	clk := &fixedClock{now: time.Date(2026, 3, 14, 16, 25, 0, 0, loc)}
	rec := &recorder{}

	f := &fleet{gateways: map[string]*fakeGateway{}, clock: clk, rec: rec, loc: loc}

	var descs []Descriptor
	var workers []*Worker
	for i, code := range codes {
		gw := newFakeGateway(uint16(1000 + i))
		f.gateways[code] = gw
		w := newTestWorker(t, code, gw, testPolicy(maxRetries), clk, rec)
		descs = append(descs, w.Device())
		workers = append(workers, w)
	}

	reg, err := NewRegistry(descs)
	require.NoError(t, err)

	c, err := NewCoordinator(CoordinatorConfig{
		Registry: reg,
		Workers:  workers,
		Window:   schedule.NewWindow(16, 24, 15*time.Minute, loc),
		Clock:    clk,
		Guard:    guard,
		Observer: rec,
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)

	f.coord = c
	return f
}

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)
	return loc
}
