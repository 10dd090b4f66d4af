package vm

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two external-variable registration modes. They are
// not interchangeable: a Str variable is the literal string value of
// std.extVar(name), while a Code variable is Jsonnet source evaluated as an
// expression when accessed.
type Kind int

const (
	Str Kind = iota
	Code
)

func (k Kind) String() string {
	if k == Code {
		return "code"
	}
	return "str"
}

// Variable is one named input to an evaluation.
type Variable struct {
	Name  string
	Value string
	Kind  Kind
}

// varTable is an ordered set of variables. Duplicate names are last write
// wins: the value is replaced in place, keeping the first registration's
// position. Registration order never affects evaluation results; the order
// is kept only so foreign calls are issued deterministically.
type varTable struct {
	vars  []Variable
	index map[string]int
}

func (t *varTable) set(v Variable) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if i, ok := t.index[v.Name]; ok {
		t.vars[i] = v
		return
	}
	t.index[v.Name] = len(t.vars)
	t.vars = append(t.vars, v)
}

// validate checks the bridge preconditions for every entry, before any
// foreign call is attempted.
func (t *varTable) validate(what string) error {
	for _, v := range t.vars {
		if v.Name == "" {
			return &InvalidInputError{Reason: what + " variable with empty name"}
		}
		if strings.IndexByte(v.Name, 0) >= 0 {
			return &InvalidInputError{Reason: fmt.Sprintf("%s variable %q: name contains NUL byte", what, v.Name)}
		}
		if strings.IndexByte(v.Value, 0) >= 0 {
			return &InvalidInputError{Reason: fmt.Sprintf("%s variable %q: value contains NUL byte", what, v.Name)}
		}
	}
	return nil
}

func (t *varTable) ordered() []Variable {
	return t.vars
}
