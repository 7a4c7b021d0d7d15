package script

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/KennethanCeyer/ptyexpect"
)

type PatternKind int

const (
	KindExact PatternKind = iota
	KindRegexp
	KindEOF
	KindTimeout
)

// PatternSpec is one item of an expect list. A plain string is an exact
// pattern; the mapping forms are {exact: s}, {regexp: s}, {eof: true} and
// {timeout: true}.
type PatternSpec struct {
	Kind  PatternKind
	Value string
}

func (p *PatternSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = PatternSpec{Kind: KindExact, Value: node.Value}
		return nil
	case yaml.MappingNode:
	default:
		return fmt.Errorf("line %d: pattern must be a string or a mapping", node.Line)
	}
	if len(node.Content) != 2 {
		return fmt.Errorf("line %d: pattern mapping must have exactly one key", node.Line)
	}
	key, val := node.Content[0], node.Content[1]
	switch key.Value {
	case "exact", "regexp":
		var s string
		if err := val.Decode(&s); err != nil {
			return err
		}
		kind := KindExact
		if key.Value == "regexp" {
			kind = KindRegexp
		}
		*p = PatternSpec{Kind: kind, Value: s}
	case "eof", "timeout":
		var on bool
		if err := val.Decode(&on); err != nil {
			return err
		}
		if !on {
			return fmt.Errorf("line %d: %s must be true", key.Line, key.Value)
		}
		kind := KindEOF
		if key.Value == "timeout" {
			kind = KindTimeout
		}
		*p = PatternSpec{Kind: kind}
	default:
		return fmt.Errorf("line %d: unknown pattern kind %q", key.Line, key.Value)
	}
	return nil
}

// Pattern compiles the spec.
func (p PatternSpec) Pattern() (ptyexpect.Pattern, error) {
	switch p.Kind {
	case KindExact:
		return ptyexpect.Exact(p.Value), nil
	case KindRegexp:
		return ptyexpect.Regexp(p.Value)
	case KindEOF:
		return ptyexpect.EOF, nil
	case KindTimeout:
		return ptyexpect.TIMEOUT, nil
	}
	return nil, fmt.Errorf("unknown pattern kind %d", p.Kind)
}

func compile(specs []PatternSpec) ([]ptyexpect.Pattern, error) {
	patterns := make([]ptyexpect.Pattern, len(specs))
	for i, spec := range specs {
		p, err := spec.Pattern()
		if err != nil {
			return nil, err
		}
		patterns[i] = p
	}
	return patterns, nil
}
