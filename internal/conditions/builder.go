package conditions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/errors"
)

// Store keys under which the builder persists itself.
const (
	RowsKey   = "conditions.rows"
	GroupsKey = "conditions.groups"
)

// Store is the key-value port the builder persists through.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Builder holds the ordered condition rows. It always has at least one row.
// All methods are safe for concurrent use.
type Builder struct {
	mu     sync.Mutex
	rows   []Condition
	groups []KeywordGroup

	store  Store
	logger *zap.Logger
}

// NewBuilder creates a builder, restoring persisted rows from store when
// present. store and logger may be nil.
func NewBuilder(store Store, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{store: store, logger: logger}
	b.load()
	if len(b.rows) == 0 {
		b.rows = []Condition{newRow(1)}
	}
	return b
}

func newRow(position int) Condition {
	return Condition{
		Keywords: []string{},
		Field:    FieldAbstract,
		Logic:    LogicAnd,
		Position: position,
	}
}

// Assign adds keyword to row i. Adding a keyword already in the row is a
// no-op, as is a blank keyword.
func (b *Builder) Assign(i int, keyword string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndexLocked(i); err != nil {
		return err
	}
	keyword = Normalize(keyword)
	if keyword == "" {
		return nil
	}
	key := foldKey(keyword)
	for _, k := range b.rows[i].Keywords {
		if foldKey(k) == key {
			return nil
		}
	}
	b.rows[i].Keywords = append(b.rows[i].Keywords, keyword)
	b.persistLocked()
	return nil
}

// Unassign removes keyword from row i. Removing an absent keyword is a no-op.
func (b *Builder) Unassign(i int, keyword string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndexLocked(i); err != nil {
		return err
	}
	key := foldKey(keyword)
	kept := b.rows[i].Keywords[:0]
	for _, k := range b.rows[i].Keywords {
		if foldKey(k) != key {
			kept = append(kept, k)
		}
	}
	b.rows[i].Keywords = kept
	b.persistLocked()
	return nil
}

// AddRow appends an empty ABSTRACT/AND row and returns its index.
func (b *Builder) AddRow() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows = append(b.rows, newRow(len(b.rows)+1))
	b.persistLocked()
	return len(b.rows) - 1
}

// RemoveRow deletes row i and renumbers positions. Removing the only row
// leaves one empty row behind.
func (b *Builder) RemoveRow(i int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndexLocked(i); err != nil {
		return err
	}
	b.rows = append(b.rows[:i], b.rows[i+1:]...)
	if len(b.rows) == 0 {
		b.rows = []Condition{newRow(1)}
	}
	for idx := range b.rows {
		b.rows[idx].Position = idx + 1
	}
	b.persistLocked()
	return nil
}

// SetField changes the searched field of row i.
func (b *Builder) SetField(i int, f Field) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndexLocked(i); err != nil {
		return err
	}
	if _, err := ParseField(string(f)); err != nil {
		return err
	}
	b.rows[i].Field = f
	b.persistLocked()
	return nil
}

// SetLogic changes the logic joining row i to the next row.
func (b *Builder) SetLogic(i int, l Logic) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkIndexLocked(i); err != nil {
		return err
	}
	if _, err := ParseLogic(string(l)); err != nil {
		return err
	}
	b.rows[i].Logic = l
	b.persistLocked()
	return nil
}

// ClearAll resets to exactly one empty row. Keyword groups are kept.
func (b *Builder) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows = []Condition{newRow(1)}
	b.persistLocked()
}

// Reset clears rows and keyword groups. Used by an application reset.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows = []Condition{newRow(1)}
	b.groups = nil
	b.persistLocked()
}

// AutoGenerate replaces all rows with one row per keyword group holding the
// primary keyword and its synonyms. Every row searches ABSTRACT and joins
// with AND, except the last which has no trailing logic.
func (b *Builder) AutoGenerate(groups []KeywordGroup) error {
	rows := make([]Condition, 0, len(groups))
	for _, g := range groups {
		terms := g.Terms()
		if len(terms) == 0 {
			continue
		}
		rows = append(rows, Condition{
			Keywords: terms,
			Field:    FieldAbstract,
			Logic:    LogicAnd,
			Position: len(rows) + 1,
		})
	}
	if len(rows) == 0 {
		return errors.NewInvalidRequest("no keyword groups to generate conditions from")
	}
	rows[len(rows)-1].Logic = LogicNone

	kept := make([]KeywordGroup, len(groups))
	for i, g := range groups {
		kept[i] = KeywordGroup{Primary: g.Primary, Synonyms: append([]string(nil), g.Synonyms...)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = rows
	b.groups = kept
	b.persistLocked()
	return nil
}

// Collect returns the rows that carry at least one keyword, in order.
// It fails with NO_CONDITIONS when every row is empty.
func (b *Builder) Collect() ([]Condition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Condition, 0, len(b.rows))
	for _, r := range b.rows {
		if r.Empty() {
			continue
		}
		out = append(out, r.clone())
	}
	if len(out) == 0 {
		return nil, errors.NewNoConditions()
	}
	return out, nil
}

// Rows returns a snapshot of every row, empty ones included.
func (b *Builder) Rows() []Condition {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Condition, len(b.rows))
	for i, r := range b.rows {
		out[i] = r.clone()
	}
	return out
}

// Groups returns the keyword groups of the last AutoGenerate.
func (b *Builder) Groups() []KeywordGroup {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]KeywordGroup, len(b.groups))
	copy(out, b.groups)
	return out
}

func (b *Builder) checkIndexLocked(i int) error {
	if i < 0 || i >= len(b.rows) {
		return errors.NewInvalidRequest(fmt.Sprintf("condition %d does not exist (have %d)", i+1, len(b.rows)))
	}
	return nil
}

// persistLocked writes rows and groups to the store. Failures are logged;
// the in-memory state stays authoritative for this process.
func (b *Builder) persistLocked() {
	if b.store == nil {
		return
	}
	if data, err := json.Marshal(b.rows); err == nil {
		if err := b.store.Set(RowsKey, string(data)); err != nil {
			b.logger.Warn("failed to persist conditions", zap.Error(err))
		}
	}
	if data, err := json.Marshal(b.groups); err == nil {
		if err := b.store.Set(GroupsKey, string(data)); err != nil {
			b.logger.Warn("failed to persist keyword groups", zap.Error(err))
		}
	}
}

func (b *Builder) load() {
	if b.store == nil {
		return
	}
	if raw, ok, err := b.store.Get(RowsKey); err != nil {
		b.logger.Warn("failed to load conditions", zap.Error(err))
	} else if ok && strings.TrimSpace(raw) != "" {
		var rows []Condition
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			b.logger.Warn("discarding unreadable conditions", zap.Error(err))
		} else {
			for i := range rows {
				rows[i].Keywords = dedup(rows[i].Keywords)
				rows[i].Position = i + 1
			}
			b.rows = rows
		}
	}
	if raw, ok, err := b.store.Get(GroupsKey); err != nil {
		b.logger.Warn("failed to load keyword groups", zap.Error(err))
	} else if ok && strings.TrimSpace(raw) != "" {
		var groups []KeywordGroup
		if err := json.Unmarshal([]byte(raw), &groups); err != nil {
			b.logger.Warn("discarding unreadable keyword groups", zap.Error(err))
		} else {
			b.groups = groups
		}
	}
}
