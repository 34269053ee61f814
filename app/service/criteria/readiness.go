package criteria

import (
	"github.com/elliotchance/pie/v2"
)

// Policy decides when accumulated criteria justify an inventory search
// instead of another clarifying question. Both knobs come from config.
type Policy struct {
	// Fields that alone make the intent searchable
	PrimaryFields []Field
	// Turns without readiness before a best-effort search is forced
	MaxClarifyingTurns int
}

func NewPolicy(primaryFields []string, maxClarifyingTurns int) Policy {
	return Policy{
		PrimaryFields: pie.Map(primaryFields, func(s string) Field {
			return Field(s)
		}),
		MaxClarifyingTurns: maxClarifyingTurns,
	}
}

// Ready reports whether a search should run now. force short-circuits the
// field check for "just show me something" turns.
func (p Policy) Ready(in Intent, force bool) bool {
	if force {
		return true
	}

	if pie.Any(p.PrimaryFields, in.Criteria.Has) {
		return true
	}

	return in.ClarifyingTurns >= p.MaxClarifyingTurns
}
