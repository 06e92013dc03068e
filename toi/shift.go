package toi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// periodSeconds is the length of a regulation period.
const periodSeconds = 1200

// Bounds past any real game. They keep the time axis small and the
// arithmetic from overflowing.
const (
	maxPeriod       = 20
	maxClockMinutes = 1200
)

// ErrMalformedShift is matched by every MalformedShiftError.
var ErrMalformedShift = errors.New("malformed shift record")

// MalformedShiftError reports the record that aborted an expansion.
type MalformedShiftError struct {
	Index int
	Field string
	Err   error
}

func (e *MalformedShiftError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("shift %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("shift %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *MalformedShiftError) Unwrap() []error {
	return []error{ErrMalformedShift, e.Err}
}

var errMissing = errors.New("missing")

// PlayerID is an opaque player identifier. The shift chart sends it as a
// number, older dumps as a string; both decode to the same value.
type PlayerID string

func (p *PlayerID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*p = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PlayerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("player id %s: %w", b, err)
	}
	*p = PlayerID(n.String())
	return nil
}

// less orders numeric ids numerically and anything else lexically.
func (p PlayerID) less(o PlayerID) bool {
	a, errA := strconv.ParseInt(string(p), 10, 64)
	b, errB := strconv.ParseInt(string(o), 10, 64)
	if errA == nil && errB == nil {
		return a < b
	}
	return p < o
}

// Seconds decodes a duration sent either as an integer or as an "M:SS"
// string. null decodes to zero.
type Seconds int

func (s *Seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = 0
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if str == "" {
			*s = 0
			return nil
		}
		n, err := ParseClock(str)
		if err != nil {
			return err
		}
		*s = Seconds(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = Seconds(n)
	return nil
}

// ShiftRecord is one player shift as published in the NHL shift chart.
type ShiftRecord struct {
	PlayerID   PlayerID `json:"playerId"`
	Period     int      `json:"period"`
	StartTime  string   `json:"startTime"`
	EndTime    string   `json:"endTime"`
	Duration   Seconds  `json:"duration"`
	TeamAbbrev string   `json:"teamAbbrev"`
}

// rawShift detects keys that are absent from the payload.
type rawShift struct {
	PlayerID   *PlayerID `json:"playerId"`
	Period     *int      `json:"period"`
	StartTime  *string   `json:"startTime"`
	EndTime    *string   `json:"endTime"`
	Duration   *Seconds  `json:"duration"`
	TeamAbbrev *string   `json:"teamAbbrev"`
}

// ParseShiftChart decodes a shift chart payload ({"data": [...]}) into
// records. Any missing or undecodable field fails the whole chart.
func ParseShiftChart(payload []byte) ([]ShiftRecord, error) {
	var chart struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &chart); err != nil {
		return nil, fmt.Errorf("decode shift chart: %w", err)
	}
	return DecodeShifts(chart.Data)
}

// DecodeShifts decodes raw shift objects. duration is optional since
// Expand recomputes it.
func DecodeShifts(raws []json.RawMessage) ([]ShiftRecord, error) {
	out := make([]ShiftRecord, 0, len(raws))
	for i, raw := range raws {
		var r rawShift
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, &MalformedShiftError{Index: i, Err: err}
		}
		missing := ""
		switch {
		case r.PlayerID == nil || *r.PlayerID == "":
			missing = "playerId"
		case r.Period == nil:
			missing = "period"
		case r.StartTime == nil:
			missing = "startTime"
		case r.EndTime == nil:
			missing = "endTime"
		case r.TeamAbbrev == nil:
			missing = "teamAbbrev"
		}
		if missing != "" {
			return nil, &MalformedShiftError{Index: i, Field: missing, Err: errMissing}
		}
		rec := ShiftRecord{
			PlayerID:   *r.PlayerID,
			Period:     *r.Period,
			StartTime:  *r.StartTime,
			EndTime:    *r.EndTime,
			TeamAbbrev: *r.TeamAbbrev,
		}
		if r.Duration != nil {
			rec.Duration = *r.Duration
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseClock converts an "M:SS" clock into seconds.
func ParseClock(clock string) (int, error) {
	i := strings.IndexByte(clock, ':')
	if i < 0 {
		return 0, fmt.Errorf("clock %q: no ':'", clock)
	}
	mins, err := strconv.Atoi(strings.TrimSpace(clock[:i]))
	if err != nil {
		return 0, fmt.Errorf("clock %q: minutes: %w", clock, err)
	}
	secs, err := strconv.Atoi(strings.TrimSpace(clock[i+1:]))
	if err != nil {
		return 0, fmt.Errorf("clock %q: seconds: %w", clock, err)
	}
	if mins < 0 || secs < 0 {
		return 0, fmt.Errorf("clock %q: negative", clock)
	}
	if mins > maxClockMinutes || secs > 59 {
		return 0, fmt.Errorf("clock %q: out of range", clock)
	}
	return 60*mins + secs, nil
}

// span is a shift resolved to absolute game seconds.
type span struct {
	player   PlayerID
	team     string
	start    int
	end      int
	duration int
}

func (s ShiftRecord) span(index int) (span, error) {
	if s.PlayerID == "" {
		return span{}, &MalformedShiftError{Index: index, Field: "playerId", Err: errMissing}
	}
	if s.TeamAbbrev == "" {
		return span{}, &MalformedShiftError{Index: index, Field: "teamAbbrev", Err: errMissing}
	}
	if s.Period < 1 || s.Period > maxPeriod {
		return span{}, &MalformedShiftError{Index: index, Field: "period", Err: fmt.Errorf("%d is not a period", s.Period)}
	}
	offset := periodSeconds * (s.Period - 1)
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return span{}, &MalformedShiftError{Index: index, Field: "startTime", Err: err}
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return span{}, &MalformedShiftError{Index: index, Field: "endTime", Err: err}
	}
	// The end second belongs to whoever starts the next shift.
	sp := span{
		player: s.PlayerID,
		team:   s.TeamAbbrev,
		start:  offset + start,
		end:    offset + end - 1,
	}
	sp.duration = sp.end - sp.start
	return sp, nil
}
