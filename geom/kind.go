package geom

import (
	"fmt"
	"strings"
)

// Kind identifies the element type of a collision body.
// Every body holds elements of exactly one kind.
type Kind uint8

const (
	KindPoint Kind = iota
	KindLine
	KindTriangle
	KindSphere
	KindCapsule
	KindOBB
	KindSDF
	numKinds
)

// NumKinds is the number of element kinds.
const NumKinds = int(numKinds)

var kindNames = [...]string{
	KindPoint:    "point",
	KindLine:     "line",
	KindTriangle: "triangle",
	KindSphere:   "sphere",
	KindCapsule:  "capsule",
	KindOBB:      "obb",
	KindSDF:      "sdf",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// ParseKind converts a config name into a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown element kind %q", s)
}

// MarshalYAML writes the kind by name.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// UnmarshalYAML reads the kind by name.
func (k *Kind) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindPair is an ordered pair of element kinds used as a table key.
type KindPair struct {
	A, B Kind
}

// Normalized returns the pair with A <= B and whether it was swapped.
func (p KindPair) Normalized() (KindPair, bool) {
	if p.A > p.B {
		return KindPair{A: p.B, B: p.A}, true
	}
	return p, false
}

func (p KindPair) String() string {
	return p.A.String() + "-" + p.B.String()
}
