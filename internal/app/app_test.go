// internal/app/app_test.go
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-resetter/internal/gateway"
	"github.com/tamzrod/modbus-resetter/internal/logger"
	"github.com/tamzrod/modbus-resetter/internal/poller"
	"github.com/tamzrod/modbus-resetter/internal/reset"
	"github.com/tamzrod/modbus-resetter/internal/schedule"
)

// ---- shared event log ----

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

func (j *journal) index(event string) int {
	for i, e := range j.snapshot() {
		if e == event {
			return i
		}
	}
	return -1
}

// ---- fake device ----

type fakeDevice struct {
	code string
	log  *journal

	mu         sync.Mutex
	regs       []uint16
	connected  bool
	connectErr error
}

func newFakeDevice(code string, j *journal) *fakeDevice {
	return &fakeDevice{code: code, log: j, regs: []uint16{0, 500}}
}

func (f *fakeDevice) Connect(context.Context) error {
	f.log.add("connect:%s", f.code)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return &gateway.ConnectionError{Device: f.code, Err: f.connectErr}
	}
	f.connected = true
	return nil
}

func (f *fakeDevice) Disconnect() error {
	f.log.add("disconnect:%s", f.code)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeDevice) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDevice) ReadRegisters(context.Context) ([]uint16, error) {
	f.log.add("read:%s", f.code)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, gateway.ErrNotConnected
	}
	return append([]uint16(nil), f.regs...), nil
}

func (f *fakeDevice) WriteRegister(_ context.Context, addr, value uint16) error {
	f.log.add("write:%s", f.code)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = value
	return nil
}

func (f *fakeDevice) counter() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[1]
}

// ---- fake clock: tickers never fire, only the start evaluation counts ----

type stillTicker struct{ ch chan time.Time }

func (t stillTicker) Chan() <-chan time.Time { return t.ch }
func (t stillTicker) Stop()                  {}

type stillClock struct{ now time.Time }

func (c stillClock) Now() time.Time                       { return c.now }
func (c stillClock) Ticker(time.Duration) schedule.Ticker { return stillTicker{ch: make(chan time.Time)} }

// ---- memory guard ----

type memGuard struct {
	mu   sync.Mutex
	date string
}

func (m *memGuard) LoadLastResetDate(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.date, nil
}

func (m *memGuard) SaveLastResetDate(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.date = date
	return nil
}

// ---- builder ----

var inWindow = time.Date(2026, 3, 14, 16, 25, 0, 0, time.UTC)

func testOptions(now time.Time, devs ...*fakeDevice) Options {
	opts := Options{
		Policy: reset.Policy{MaxRetries: 2, RetryDelay: time.Millisecond},
		Window: schedule.NewWindow(16, 24, 15*time.Minute, time.UTC),

		PrecheckLead: 5 * time.Minute,
		TickInterval: time.Minute,
		Clock:        stillClock{now: now},
		Logger:       logger.Nop(),
	}
	for _, d := range devs {
		opts.Devices = append(opts.Devices, Device{
			Descriptor: reset.Descriptor{
				Code:   d.code,
				Layout: reset.Layout{Start: 0, Length: 2, CounterOffset: 1},
			},
			Gateway: d,
		})
	}
	return opts
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Logger: logger.Nop()})
	require.Error(t, err)

	j := &journal{}
	opts := testOptions(inWindow, newFakeDevice("a", j), newFakeDevice("a", j))
	_, err = New(opts)
	require.Error(t, err)
}

func TestStart_ConnectsBeforeScheduling(t *testing.T) {
	j := &journal{}
	a1, a2 := newFakeDevice("a", j), newFakeDevice("b", j)
	app, err := New(testOptions(inWindow, a1, a2))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	defer app.Stop()

	// the immediate in-window evaluation resets both devices
	require.Eventually(t, func() bool {
		return a1.counter() == 0 && a2.counter() == 0
	}, 2*time.Second, 5*time.Millisecond)

	firstRead := min(j.index("read:a"), j.index("read:b"))
	assert.Less(t, j.index("connect:a"), firstRead)
	assert.Less(t, j.index("connect:b"), firstRead)
}

func TestStart_ToleratesConnectFailure(t *testing.T) {
	j := &journal{}
	dead := newFakeDevice("dead", j)
	dead.connectErr = errors.New("refused")
	app, err := New(testOptions(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), dead))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Stop())

	assert.False(t, dead.IsConnected())
}

func TestStartStop_Idempotent(t *testing.T) {
	j := &journal{}
	d := newFakeDevice("a", j)
	app, err := New(testOptions(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), d))
	require.NoError(t, err)

	require.NoError(t, app.Stop()) // before start

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Start(context.Background()))

	require.NoError(t, app.Stop())
	require.NoError(t, app.Stop())

	var connects, disconnects int
	for _, e := range j.snapshot() {
		switch e {
		case "connect:a":
			connects++
		case "disconnect:a":
			disconnects++
		}
	}
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)

	assert.ErrorIs(t, app.Start(context.Background()), ErrStopped)
}

func TestStop_WaitsForCycleThenDisconnects(t *testing.T) {
	j := &journal{}
	d := newFakeDevice("a", j)
	app, err := New(testOptions(inWindow, d))
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Stop())

	events := j.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, "disconnect:a", events[len(events)-1])
}

func TestStart_RestoredGuardSkipsCompletedDay(t *testing.T) {
	j := &journal{}
	d := newFakeDevice("a", j)
	opts := testOptions(inWindow, d)
	opts.Guard = &memGuard{date: "2026-03-14"}

	app, err := New(opts)
	require.NoError(t, err)

	require.NoError(t, app.Start(context.Background()))
	require.NoError(t, app.Stop())

	assert.Equal(t, -1, j.index("read:a"))
	assert.Equal(t, uint16(500), d.counter())
}

func TestStart_AssertsStatusAndRunsPollers(t *testing.T) {
	j := &journal{}
	d := newFakeDevice("a", j)
	opts := testOptions(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), d)

	asserted := make(chan struct{}, 1)
	opts.Status = assertFunc(func() { asserted <- struct{}{} })

	telemetryGW := newFakeDevice("a-telemetry", j)
	p, err := poller.New(
		poller.Config{Device: "a", Interval: 5 * time.Millisecond, Length: 2, CounterOffset: 1},
		telemetryGW,
		nil,
		logger.Nop(),
	)
	require.NoError(t, err)
	opts.Pollers = []*poller.Poller{p}

	got := make(chan poller.Sample, 16)
	opts.Sink = func(_ context.Context, s poller.Sample) {
		select {
		case got <- s:
		default:
		}
	}

	closed := 0
	opts.Closers = []func() error{func() error {
		closed++
		return nil
	}}

	app, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, app.Start(context.Background()))

	select {
	case <-asserted:
	case <-time.After(2 * time.Second):
		t.Fatal("status not asserted")
	}

	select {
	case s := <-got:
		assert.Equal(t, "a", s.Device)
		assert.True(t, s.OK())
		assert.Equal(t, uint16(500), s.Counter)
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry sample")
	}

	require.NoError(t, app.Stop())
	require.NoError(t, app.Close())
	assert.Equal(t, 1, closed)
	assert.False(t, telemetryGW.IsConnected())
}

type assertFunc func()

func (f assertFunc) Assert() { f() }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNew_ScopesComponentLoggers(t *testing.T) {
	var out syncBuffer
	opts := testOptions(inWindow, newFakeDevice("a", &journal{}))
	opts.Logger = zerolog.New(&out)

	app, err := New(opts)
	require.NoError(t, err)
	defer app.Close()

	res := app.Coordinator().RunCycle(context.Background())
	require.True(t, res.Succeeded)

	logs := out.String()
	assert.Contains(t, logs, `"component":"worker"`)
	assert.Contains(t, logs, `"component":"coordinator"`)
}
