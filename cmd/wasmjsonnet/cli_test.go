package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBinding(t *testing.T) {
	b, err := parseBinding("env=production")
	if err != nil {
		t.Fatal(err)
	}
	if b.name != "env" || b.value != "production" {
		t.Errorf("binding = %+v", b)
	}

	// value may contain '='
	b, err = parseBinding("query=a=b")
	if err != nil {
		t.Fatal(err)
	}
	if b.name != "query" || b.value != "a=b" {
		t.Errorf("binding = %+v", b)
	}

	// empty value is a valid binding
	b, err = parseBinding("empty=")
	if err != nil {
		t.Fatal(err)
	}
	if b.name != "empty" || b.value != "" {
		t.Errorf("binding = %+v", b)
	}

	if _, err := parseBinding("=oops"); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestParseBindingFromEnvironment(t *testing.T) {
	t.Setenv("WASMJSONNET_TEST_BINDING", "from-env")

	b, err := parseBinding("WASMJSONNET_TEST_BINDING")
	if err != nil {
		t.Fatal(err)
	}
	if b.value != "from-env" {
		t.Errorf("value = %q", b.value)
	}

	if _, err := parseBinding("WASMJSONNET_TEST_UNSET"); err == nil {
		t.Error("expected error for unset environment variable")
	}
}

func TestLoadSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.jsonnet")
	if err := os.WriteFile(path, []byte(`{a: 1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	// -e and a file argument conflict; neither may be silently dropped
	if _, _, err := loadSource(`{b: 2}`, []string{path}, nil, false); err == nil {
		t.Error("expected error when both -e and a file are given")
	}

	filename, source, err := loadSource(`{b: 2}`, nil, nil, false)
	if err != nil || filename != "<cmdline>" || source != `{b: 2}` {
		t.Errorf("snippet: (%q, %q, %v)", filename, source, err)
	}

	filename, source, err = loadSource("", []string{path}, nil, false)
	if err != nil || filename != path || source != `{a: 1}` {
		t.Errorf("file: (%q, %q, %v)", filename, source, err)
	}

	if _, _, err := loadSource("", []string{filepath.Join(dir, "missing.jsonnet")}, nil, false); err == nil {
		t.Error("expected error for unreadable file")
	}

	filename, source, err = loadSource("", nil, strings.NewReader(`{c: 3}`), false)
	if err != nil || filename != "<stdin>" || source != `{c: 3}` {
		t.Errorf("stdin: (%q, %q, %v)", filename, source, err)
	}

	// interactive terminal with no input selects nothing
	filename, _, err = loadSource("", nil, nil, true)
	if err != nil || filename != "" {
		t.Errorf("interactive: (%q, %v)", filename, err)
	}
}

func TestGetEngine(t *testing.T) {
	if _, err := getEngine(""); err != nil {
		t.Errorf("default engine: %v", err)
	}
	if _, err := getEngine("wasm"); err != nil {
		t.Errorf("wasm engine: %v", err)
	}
	if _, err := getEngine("cgo"); err != nil {
		t.Errorf("cgo engine: %v", err)
	}
	if _, err := getEngine("jvm"); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestReplLocalAccumulation(t *testing.T) {
	state := &replState{}

	if !isLocalDef(`local x = 1;`) {
		t.Error("local definition not recognized")
	}
	if isLocalDef(`x + 1`) {
		t.Error("expression misread as local definition")
	}
	if isLocalDef(`local x = 1; x`) {
		t.Error("expression with leading local misread as pure definition")
	}

	state.locals = append(state.locals, `local x = 1;`, `local y = x + 1;`)
	prog := state.program("x + y")
	for _, want := range []string{"local x = 1;", "local y = x + 1;", "x + y"} {
		if !strings.Contains(prog, want) {
			t.Errorf("program missing %q:\n%s", want, prog)
		}
	}
	if !strings.HasSuffix(prog, "x + y") {
		t.Errorf("expression not last:\n%s", prog)
	}
}
