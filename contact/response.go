// Package contact turns proximities into persistent contacts: the response
// table, the per-body mappers holding auxiliary contact points and the
// manager that matches detections across steps by contact id.
package contact

import (
	"fmt"
	"strings"

	"github.com/pthm-cable/freemotion/config"
	"github.com/pthm-cable/freemotion/diag"
	"github.com/pthm-cable/freemotion/geom"
)

// ResponseKind selects how a contact is resolved.
type ResponseKind uint8

const (
	// Unsupported marks kind pairs with no registered response.
	Unsupported ResponseKind = iota
	// Penalty applies a spring force during the next free motion.
	Penalty
	// Constraint adds one unilateral row per point.
	Constraint
	// Friction adds a unilateral row and two tangential rows in a Coulomb cone.
	Friction
	// Stick adds three bilateral rows per point.
	Stick
	// Ignore drops the pair silently.
	Ignore
)

var responseNames = [...]string{
	Unsupported: "unsupported",
	Penalty:     "penalty",
	Constraint:  "constraint",
	Friction:    "friction",
	Stick:       "stick",
	Ignore:      "ignore",
}

func (r ResponseKind) String() string {
	if int(r) < len(responseNames) {
		return responseNames[r]
	}
	return fmt.Sprintf("response(%d)", r)
}

// Rows returns the number of constraint rows one point of this response adds.
func (r ResponseKind) Rows() int {
	switch r {
	case Constraint:
		return 1
	case Friction, Stick:
		return 3
	}
	return 0
}

// ParseResponse converts a config name into a ResponseKind. "unsupported"
// is not accepted.
func ParseResponse(s string) (ResponseKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range responseNames {
		if i != int(Unsupported) && name == s {
			return ResponseKind(i), nil
		}
	}
	return Unsupported, fmt.Errorf("unknown contact response %q", s)
}

// ResponseTable maps element kind pairs to responses. Pairs never set
// resolve to Unsupported.
type ResponseTable struct {
	kinds map[geom.KindPair]ResponseKind
}

// NewResponseTable creates an empty table.
func NewResponseTable() *ResponseTable {
	return &ResponseTable{kinds: make(map[geom.KindPair]ResponseKind)}
}

// Set registers the response for a kind pair, in either order.
func (t *ResponseTable) Set(a, b geom.Kind, r ResponseKind) {
	key, _ := geom.KindPair{A: a, B: b}.Normalized()
	t.kinds[key] = r
}

// Lookup returns the response for a kind pair, in either order.
func (t *ResponseTable) Lookup(a, b geom.Kind) ResponseKind {
	key, _ := geom.KindPair{A: a, B: b}.Normalized()
	if r, ok := t.kinds[key]; ok {
		return r
	}
	return Unsupported
}

// Len returns the number of registered pairs.
func (t *ResponseTable) Len() int {
	return len(t.kinds)
}

// BuildResponseTable registers the configured default response for every kind
// pair the detector supports, then applies the per-pair rules. Unknown names
// fall back to Constraint with an InvalidParameter warning.
func BuildResponseTable(cfg config.ContactConfig, supported func(a, b geom.Kind) bool, rep *diag.Reporter) *ResponseTable {
	def, err := ParseResponse(cfg.Response)
	if err != nil {
		rep.Warn(diag.InvalidParameter, "contact", "invalid default response replaced",
			"value", cfg.Response, "used", Constraint.String())
		def = Constraint
	}

	t := NewResponseTable()
	for a := 0; a < geom.NumKinds; a++ {
		for b := a; b < geom.NumKinds; b++ {
			if supported(geom.Kind(a), geom.Kind(b)) {
				t.Set(geom.Kind(a), geom.Kind(b), def)
			}
		}
	}
	for _, rule := range cfg.Rules {
		r, err := ParseResponse(rule.Response)
		if err != nil {
			rep.Warn(diag.InvalidParameter, "contact", "invalid response rule ignored",
				"pair", geom.KindPair{A: rule.A, B: rule.B}.String(), "value", rule.Response)
			continue
		}
		t.Set(rule.A, rule.B, r)
	}
	return t
}
