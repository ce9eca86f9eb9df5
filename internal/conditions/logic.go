package conditions

import (
	"fmt"
	"strings"
)

// DisplayLogic renders conditions for people: keywords within a condition
// are joined by OR (parenthesized when more than one) and conditions by AND.
// The string is presentational only; see Flatten for what is actually sent.
func DisplayLogic(conds []Condition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		switch len(c.Keywords) {
		case 0:
			continue
		case 1:
			parts = append(parts, c.Keywords[0])
		default:
			parts = append(parts, "("+strings.Join(c.Keywords, " OR ")+")")
		}
	}
	return strings.Join(parts, " AND ")
}

// Flatten returns every keyword across conds as one de-duplicated list, in
// first-seen order. This is the keyword set the confirmed search sends; the
// per-condition field and logic are not carried.
func Flatten(conds []Condition) []string {
	var all []string
	for _, c := range conds {
		all = append(all, c.Keywords...)
	}
	return dedup(all)
}

// LogicMismatch reports whether the displayed logic for conds differs from
// what the backend will apply to Flatten(conds), with a note for the user.
// The divergence is surfaced, not reconciled.
func LogicMismatch(conds []Condition) (string, bool) {
	var reasons []string

	nonEmpty := 0
	for _, c := range conds {
		if !c.Empty() {
			nonEmpty++
		}
	}
	if nonEmpty > 1 {
		reasons = append(reasons, fmt.Sprintf("%d conditions are flattened into one keyword set", nonEmpty))
	}
	for _, c := range conds {
		if c.Empty() {
			continue
		}
		if c.Field != FieldAbstract {
			reasons = append(reasons, fmt.Sprintf("condition %d searches %s but field selection is not sent", c.Position, c.Field))
		}
		if c.Logic == LogicOr {
			reasons = append(reasons, fmt.Sprintf("condition %d uses OR but row logic is not sent", c.Position))
		}
	}
	if len(reasons) == 0 {
		return "", false
	}
	return "displayed logic may differ from the applied search: " + strings.Join(reasons, "; "), true
}
