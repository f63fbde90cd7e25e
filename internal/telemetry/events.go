// internal/telemetry/events.go
package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/modbus-resetter/internal/poller"
	"github.com/tamzrod/modbus-resetter/internal/reset"
)

// Event types carried in the envelope.
const (
	TypeResetAttempt    = "resetter.reset.attempt"
	TypeResetCycle      = "resetter.reset.cycle"
	TypeTelemetrySample = "resetter.telemetry.sample"
)

const specVersion = "1.0"

// Event is the CloudEvent-shaped envelope of every published message.
type Event struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	DataContentType string          `json:"datacontenttype"`
	Subject         string          `json:"subject"`
	Time            time.Time       `json:"time"`
	Data            json.RawMessage `json:"data"`
}

// NewEvent wraps data in an envelope with a fresh id.
func NewEvent(source, typ, subject string, at time.Time, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("telemetry: marshal %s: %w", typ, err)
	}
	return Event{
		SpecVersion:     specVersion,
		ID:              uuid.NewString(),
		Source:          source,
		Type:            typ,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            at.UTC(),
		Data:            raw,
	}, nil
}

// Decode parses an envelope.
func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("telemetry: decode envelope: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("telemetry: envelope without type")
	}
	return ev, nil
}

// ---- payloads ----

// AttemptData is one finished reset attempt.
type AttemptData struct {
	Device     string    `json:"device"`
	At         time.Time `json:"at"`
	Attempt    int       `json:"attempt"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	Counter    *uint16   `json:"counter,omitempty"`
	Succeeded  bool      `json:"succeeded"`
	Exhausted  bool      `json:"exhausted"`
	Error      string    `json:"error,omitempty"`
}

// CycleData is one finished fleet cycle.
type CycleData struct {
	CycleID    string    `json:"cycle_id"`
	Date       string    `json:"date"`
	Manual     bool      `json:"manual"`
	Succeeded  bool      `json:"succeeded"`
	Devices    int       `json:"devices"`
	Failed     []string  `json:"failed,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SampleData is one telemetry poll.
type SampleData struct {
	Device    string    `json:"device"`
	At        time.Time `json:"at"`
	Counter   *uint16   `json:"counter,omitempty"`
	Registers []uint16  `json:"registers,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func attemptData(ev reset.AttemptEvent) AttemptData {
	d := AttemptData{
		Device:     ev.Device,
		At:         ev.At.UTC(),
		Attempt:    ev.Attempt,
		RetryCount: ev.RetryCount,
		MaxRetries: ev.MaxRetries,
		Succeeded:  ev.Succeeded,
		Exhausted:  ev.Exhausted,
	}
	if ev.CounterRead {
		c := ev.Counter
		d.Counter = &c
	}
	if ev.Err != nil {
		d.Error = ev.Err.Error()
	}
	return d
}

func cycleData(res reset.CycleResult) CycleData {
	return CycleData{
		CycleID:    res.ID,
		Date:       res.Date,
		Manual:     res.Manual,
		Succeeded:  res.Succeeded,
		Devices:    len(res.Outcomes),
		Failed:     res.Failed(),
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: res.FinishedAt.UTC(),
	}
}

func sampleData(s poller.Sample) SampleData {
	d := SampleData{Device: s.Device, At: s.At.UTC()}
	if s.Err != nil {
		d.Error = s.Err.Error()
		return d
	}
	c := s.Counter
	d.Counter = &c
	d.Registers = s.Registers
	return d
}

// ---- subjects ----

// Subjects builds the subject tree under one prefix.
type Subjects struct {
	Prefix string
}

func (s Subjects) Attempt(device string) string   { return s.Prefix + ".reset.attempt." + Token(device) }
func (s Subjects) Cycle() string                  { return s.Prefix + ".reset.cycle" }
func (s Subjects) Telemetry(device string) string { return s.Prefix + ".telemetry." + Token(device) }

// All matches every subject under the prefix. Used for the stream.
func (s Subjects) All() string { return s.Prefix + ".>" }

// Token makes a device code safe as one subject token.
func Token(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, code)
}
