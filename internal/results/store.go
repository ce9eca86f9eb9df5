// Package results keeps the last successful result set of each search mode
// and backs spreadsheet export.
package results

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/patent"
)

// Mode is one of the three independent search modes.
type Mode string

const (
	ModeTech      Mode = "tech"
	ModeCondition Mode = "condition"
	ModeExcel     Mode = "excel"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeTech, ModeCondition, ModeExcel}

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTech, ModeCondition, ModeExcel:
		return m, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown mode %q: want tech, condition or excel", s))
	}
}

// KeyPrefix prefixes the store key of each mode: results.<mode>.
const KeyPrefix = "results."

// KV is the key-value port results persist through.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// ExportOptions tells an Exporter where and under what name to write.
type ExportOptions struct {
	// Label is the filename prefix.
	Label string
	// Dir is the output directory. Empty means the exporter's default.
	Dir string
}

// Exporter writes records to a spreadsheet and returns its path.
type Exporter interface {
	Export(mode Mode, records []patent.Record, opts ExportOptions) (string, error)
}

// Store holds one record list per mode. Entries are replaced wholesale,
// never merged, and slices are copied in and out.
type Store struct {
	mu      sync.RWMutex
	entries map[Mode][]patent.Record

	kv       KV
	exporter Exporter
	logger   *zap.Logger
}

// New creates a Store, restoring persisted entries from kv. kv, exporter and
// logger may be nil.
func New(kv KV, exporter Exporter, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		entries:  make(map[Mode][]patent.Record),
		kv:       kv,
		exporter: exporter,
		logger:   logger,
	}
	s.load()
	return s
}

// Set replaces the entry for mode. A nil slice is stored as empty: a
// successful search with no hits is still a result.
func (s *Store) Set(mode Mode, records []patent.Record) {
	cp := copyRecords(records)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[mode] = cp
	s.persistLocked(mode, cp)
}

// Get returns a copy of the entry for mode. ok is false when no search of
// that mode has succeeded.
func (s *Store) Get(mode Mode) ([]patent.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.entries[mode]
	if !ok {
		return nil, false
	}
	return copyRecords(records), true
}

// Count returns the number of records stored for mode.
func (s *Store) Count(mode Mode) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[mode])
}

// Clear drops the entry for mode.
func (s *Store) Clear(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, mode)
	if s.kv != nil {
		if err := s.kv.Delete(KeyPrefix + string(mode)); err != nil {
			s.logger.Warn("failed to clear persisted results", zap.String("mode", string(mode)), zap.Error(err))
		}
	}
}

// ClearAll drops every entry.
func (s *Store) ClearAll() {
	for _, m := range Modes {
		s.Clear(m)
	}
}

// Export hands the entry for mode to the exporter. It fails with NO_DATA
// when the entry is absent or empty.
func (s *Store) Export(mode Mode, opts ExportOptions) (string, error) {
	records, ok := s.Get(mode)
	if !ok || len(records) == 0 {
		return "", errors.NewNoData(string(mode))
	}
	if s.exporter == nil {
		return "", errors.NewInternal(fmt.Errorf("no exporter configured"))
	}
	return s.exporter.Export(mode, records, opts)
}

func (s *Store) persistLocked(mode Mode, records []patent.Record) {
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn("failed to encode results", zap.String("mode", string(mode)), zap.Error(err))
		return
	}
	if err := s.kv.Set(KeyPrefix+string(mode), string(data)); err != nil {
		s.logger.Warn("failed to persist results", zap.String("mode", string(mode)), zap.Error(err))
	}
}

func (s *Store) load() {
	if s.kv == nil {
		return
	}
	for _, mode := range Modes {
		raw, ok, err := s.kv.Get(KeyPrefix + string(mode))
		if err != nil {
			s.logger.Warn("failed to load results", zap.String("mode", string(mode)), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		var records []patent.Record
		if err := json.Unmarshal([]byte(raw), &records); err != nil {
			s.logger.Warn("discarding unreadable results", zap.String("mode", string(mode)), zap.Error(err))
			continue
		}
		if records == nil {
			records = []patent.Record{}
		}
		s.entries[mode] = records
	}
}

func copyRecords(records []patent.Record) []patent.Record {
	out := make([]patent.Record, len(records))
	for i, r := range records {
		r.Applicants = cloneStrings(r.Applicants)
		r.Inventors = cloneStrings(r.Inventors)
		r.Features = cloneStrings(r.Features)
		r.Effects = cloneStrings(r.Effects)
		r.IPCClasses = cloneStrings(r.IPCClasses)
		out[i] = r
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
