// Package state persists position snapshots during a session. Writes are
// append-style and best-effort: a failed write is logged and never fatal
// to the trading loops that call it.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantpulse/strangle-bot/internal/logger"
)

// LegSnapshot is the persisted view of one leg.
type LegSnapshot struct {
	Instrument string  `json:"instrument"`
	Role       string  `json:"role"`
	ActiveQty  int     `json:"active_qty"`
	AvgPrice   float64 `json:"avg_price"`
	LastPrice  float64 `json:"last_price"`
	StopPrice  float64 `json:"stop_price,omitempty"`
}

// PositionSnapshot is one line of the episode's append-only record.
type PositionSnapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	Underlying      string        `json:"underlying"`
	StrategyTag     string        `json:"strategy_tag"`
	UnderlyingPrice float64       `json:"underlying_price"`
	ProfitPoints    float64       `json:"profit_points"`
	ProfitRupees    float64       `json:"profit_rupees"`
	Legs            []LegSnapshot `json:"legs"`
	Notes           string        `json:"notes,omitempty"`
}

// Recorder appends position snapshots to one JSON-lines file per episode.
type Recorder struct {
	log      *logger.Logger
	stateDir string
	path     string

	mu sync.Mutex
}

// NewRecorder creates the state directory and the episode file.
func NewRecorder(log *logger.Logger, underlying, tag string) (*Recorder, error) {
	stateDir := "state"
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	filename := fmt.Sprintf("%s_%s_%s.jsonl", underlying, tag, time.Now().Format("2006-01-02"))
	return &Recorder{
		log:      log,
		stateDir: stateDir,
		path:     filepath.Join(stateDir, filename),
	}, nil
}

// Record appends one snapshot. Failures are logged, never returned as
// fatal; the trading loops call this opportunistically from sleeps.
func (r *Recorder) Record(snap PositionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		r.logError("snapshot marshal failed", err)
		return
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		r.logError("snapshot file open failed", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		r.logError("snapshot write failed", err)
	}
}

// Path returns the episode file path.
func (r *Recorder) Path() string { return r.path }

// LoadLast reads the most recent snapshot from the episode file, for
// status displays and recovery after a restart.
func (r *Recorder) LoadLast() (*PositionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var lastLine []byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lastLine = data[start:i]
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lastLine = data[start:]
	}
	if len(lastLine) == 0 {
		return nil, fmt.Errorf("state file %s is empty", r.path)
	}
	var snap PositionSnapshot
	if err := json.Unmarshal(lastLine, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (r *Recorder) logError(context string, err error) {
	if r.log != nil {
		r.log.Error("%s: %v", context, err)
	}
}
