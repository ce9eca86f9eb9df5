// Package conditions assembles search conditions from keyword groups and
// explicit "assign keyword to condition N" commands.
package conditions

import (
	"fmt"
	"strings"

	"github.com/hpungsan/scout/internal/errors"
)

// Field is the patent section a condition searches.
type Field string

const (
	FieldTitle    Field = "TITLE"
	FieldAbstract Field = "ABSTRACT"
	FieldClaims   Field = "CLAIMS"
)

// Logic joins a condition to the next one.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
	// LogicNone marks the last row, which has nothing to join to.
	LogicNone Logic = ""
)

// KeywordGroup is a primary keyword plus backend-suggested synonyms.
// Groups are immutable once received for a session.
type KeywordGroup struct {
	Primary  string   `json:"keyword"`
	Synonyms []string `json:"synonyms"`
}

// Terms returns the primary keyword followed by its synonyms, normalized and
// de-duplicated. Blank entries are dropped.
func (g KeywordGroup) Terms() []string {
	return dedup(append([]string{g.Primary}, g.Synonyms...))
}

// Condition is one row of the assembly: a keyword set searched in one field.
type Condition struct {
	Keywords []string `json:"keywords"`
	Field    Field    `json:"field"`
	Logic    Logic    `json:"logic"`
	Position int      `json:"position"`
}

// Empty reports whether the condition has no keywords. Empty conditions are
// never sent to the backend.
func (c Condition) Empty() bool {
	return len(c.Keywords) == 0
}

func (c Condition) clone() Condition {
	out := c
	out.Keywords = append([]string(nil), c.Keywords...)
	return out
}

// ParseField accepts a field name case-insensitively.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToUpper(strings.TrimSpace(s))); f {
	case FieldTitle, FieldAbstract, FieldClaims:
		return f, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown field %q: want TITLE, ABSTRACT or CLAIMS", s))
	}
}

// ParseLogic accepts AND or OR case-insensitively.
func ParseLogic(s string) (Logic, error) {
	switch l := Logic(strings.ToUpper(strings.TrimSpace(s))); l {
	case LogicAnd, LogicOr:
		return l, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown logic %q: want AND or OR", s))
	}
}

func dedup(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = Normalize(k)
		if k == "" {
			continue
		}
		key := foldKey(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	return out
}
