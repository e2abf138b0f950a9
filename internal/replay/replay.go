// Package replay reads JSONL interaction logs and feeds them to a store.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lazypower/fungimap/internal/session"
)

// Event is one line of an interaction log. The same shape is accepted by
// the HTTP action endpoint.
type Event struct {
	Type         string   `json:"type"`
	Slug         string   `json:"slug,omitempty"`
	Query        string   `json:"query,omitempty"`
	Perspectives []string `json:"perspectives,omitempty"`
	DurationMs   int64    `json:"duration_ms,omitempty"`
	Pct          float64  `json:"pct,omitempty"`
	ResultCount  int      `json:"result_count,omitempty"`
}

// camelCase names written by browser clients
var aliases = map[string]session.ActionType{
	"pageVisit":         session.ActionPageVisit,
	"perspectiveChange": session.ActionPerspectiveChange,
	"timeSpent":         session.ActionTimeSpent,
	"view":              session.ActionPageVisit,
}

// ActionType resolves the event type, mapping known aliases.
func (e Event) ActionType() session.ActionType {
	t := strings.TrimSpace(e.Type)
	if a, ok := aliases[t]; ok {
		return a
	}
	return session.ActionType(t)
}

// Data converts the payload for session.Store.Track.
func (e Event) Data() session.Data {
	return session.Data{
		Slug:         e.Slug,
		Query:        e.Query,
		Perspectives: e.Perspectives,
		DurationMs:   e.DurationMs,
		Pct:          e.Pct,
		ResultCount:  e.ResultCount,
	}
}

// ParseFile reads a JSONL log. Malformed lines are skipped.
func ParseFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads JSONL events from r. Blank and malformed lines and lines
// without a type are skipped.
func Parse(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if strings.TrimSpace(ev.Type) == "" {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return events, nil
}

// Tracker records actions. *session.Store satisfies it.
type Tracker interface {
	Track(t session.ActionType, d session.Data) bool
}

// Summary counts what Apply did.
type Summary struct {
	Read     int            `json:"read"`
	Recorded int            `json:"recorded"`
	Ignored  int            `json:"ignored"`
	ByType   map[string]int `json:"by_type"`
}

// Apply tracks every event in order. Events the store declines (short
// hovers, short queries) count as ignored.
func Apply(t Tracker, events []Event) Summary {
	s := Summary{Read: len(events), ByType: make(map[string]int)}
	for _, ev := range events {
		at := ev.ActionType()
		if t.Track(at, ev.Data()) {
			s.Recorded++
			s.ByType[string(at)]++
		} else {
			s.Ignored++
		}
	}
	return s
}
