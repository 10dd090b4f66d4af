package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wasmjsonnet/wasmjsonnet/bridge"
	"github.com/wasmjsonnet/wasmjsonnet/engine/jsonnet"
	"github.com/wasmjsonnet/wasmjsonnet/engine/libjsonnet"
	"github.com/wasmjsonnet/wasmjsonnet/internal/config"
	"github.com/wasmjsonnet/wasmjsonnet/vm"
)

var rootCmd = &cobra.Command{
	Use:   "wasmjsonnet [file]",
	Short: "Jsonnet evaluator running on embedded WebAssembly",
	Long: `wasmjsonnet - Evaluate Jsonnet without cgo or a system library.

The Jsonnet C library runs compiled to WebAssembly and embedded in this
binary. Programs can be provided via:
  - File argument: wasmjsonnet config.jsonnet
  - Inline flag:   wasmjsonnet -e '{a: 1 + 2}'
  - Stdin:         echo '{a: 1}' | wasmjsonnet`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEval,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: $WASMJSONNET_CONFIG, then .wasmjsonnet.toml)")
	rootCmd.PersistentFlags().String("engine", "", "Evaluator engine: wasm, cgo")
	rootCmd.PersistentFlags().Int("max-stack", 0, "Max evaluator stack depth (0 = default)")
	rootCmd.PersistentFlags().Int("max-trace", 0, "Max stack frames in error traces (0 = default)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Evaluation timeout (0 = none)")
	rootCmd.PersistentFlags().StringArray("ext-str", nil, "External string variable NAME=VALUE (repeatable; NAME alone reads $NAME)")
	rootCmd.PersistentFlags().StringArray("ext-code", nil, "External code variable NAME=EXPR (repeatable)")
	rootCmd.PersistentFlags().StringArray("tla-str", nil, "Top-level string argument NAME=VALUE (repeatable)")
	rootCmd.PersistentFlags().StringArray("tla-code", nil, "Top-level code argument NAME=EXPR (repeatable)")

	rootCmd.Flags().StringP("exec", "e", "", "Jsonnet snippet to evaluate")
}

// binding is one NAME=VALUE flag occurrence.
type binding struct {
	name  string
	value string
}

// parseBinding splits a NAME=VALUE flag. A bare NAME reads the value from
// the environment, matching the C jsonnet tool.
func parseBinding(spec string) (binding, error) {
	if name, value, ok := strings.Cut(spec, "="); ok {
		if name == "" {
			return binding{}, fmt.Errorf("invalid binding %q: empty name", spec)
		}
		return binding{name: name, value: value}, nil
	}
	value, ok := os.LookupEnv(spec)
	if !ok {
		return binding{}, fmt.Errorf("binding %q: environment variable not set", spec)
	}
	return binding{name: spec, value: value}, nil
}

func parseBindings(specs []string) ([]binding, error) {
	out := make([]binding, 0, len(specs))
	for _, spec := range specs {
		b, err := parseBinding(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func getEngine(name string) (bridge.Engine, error) {
	switch name {
	case "", "wasm":
		return jsonnet.Default(), nil
	case "cgo":
		return libjsonnet.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q: use wasm or cgo", name)
	}
}

// buildVM assembles a VM from the config file and flags; flags win.
func buildVM(cmd *cobra.Command) (*vm.VM, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	engineName := cfg.VM.Engine
	if flag, _ := cmd.Flags().GetString("engine"); flag != "" {
		engineName = flag
	}
	engine, err := getEngine(engineName)
	if err != nil {
		return nil, err
	}

	maxStack := cfg.VM.MaxStack
	if cmd.Flags().Changed("max-stack") {
		maxStack, _ = cmd.Flags().GetInt("max-stack")
	}
	maxTrace := cfg.VM.MaxTrace
	if cmd.Flags().Changed("max-trace") {
		maxTrace, _ = cmd.Flags().GetInt("max-trace")
	}
	timeout := cfg.VM.Timeout.Duration()
	if cmd.Flags().Changed("timeout") {
		timeout, _ = cmd.Flags().GetDuration("timeout")
	}

	v := vm.New(
		vm.WithEngine(engine),
		vm.WithMaxStack(maxStack),
		vm.WithMaxTrace(maxTrace),
		vm.WithTimeout(timeout),
	)

	for name, value := range cfg.Ext.Str {
		v.ExtVar(name, value)
	}
	for name, value := range cfg.Ext.Code {
		v.ExtCode(name, value)
	}
	for name, value := range cfg.TLA.Str {
		v.TLAVar(name, value)
	}
	for name, value := range cfg.TLA.Code {
		v.TLACode(name, value)
	}

	// flag bindings override config bindings of the same name
	for _, group := range []struct {
		flag  string
		apply func(string, string)
	}{
		{"ext-str", v.ExtVar},
		{"ext-code", v.ExtCode},
		{"tla-str", v.TLAVar},
		{"tla-code", v.TLACode},
	} {
		specs, _ := cmd.Flags().GetStringArray(group.flag)
		bindings, err := parseBindings(specs)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			group.apply(b.name, b.value)
		}
	}

	return v, nil
}

// loadSource resolves the program text from -e, a file argument, or stdin.
// Giving both -e and a file is an error rather than a silent preference.
// An empty filename with nil error means nothing was provided and the
// caller should show help.
func loadSource(snippet string, args []string, stdin io.Reader, interactive bool) (filename, source string, err error) {
	switch {
	case snippet != "" && len(args) > 0:
		return "", "", fmt.Errorf("pass either -e or a file argument, not both")
	case snippet != "":
		return "<cmdline>", snippet, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", err
		}
		return args[0], string(data), nil
	case interactive:
		return "", "", nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", err
		}
		return "<stdin>", string(data), nil
	}
}

func runEval(cmd *cobra.Command, args []string) {
	snippet, _ := cmd.Flags().GetString("exec")
	stat, _ := os.Stdin.Stat()
	interactive := (stat.Mode() & os.ModeCharDevice) != 0

	filename, source, err := loadSource(snippet, args, os.Stdin, interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if filename == "" || (filename == "<stdin>" && source == "") {
		cmd.Help()
		return
	}

	v, err := buildVM(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out, err := v.EvaluateSnippet(context.Background(), filename, source)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
	fmt.Print(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Println()
	}
}

// errorMessage keeps evaluator diagnostics verbatim and prefixes everything
// else for context.
func errorMessage(err error) string {
	if ee, ok := err.(*vm.EvaluationError); ok {
		return strings.TrimRight(ee.Diagnostic, "\n")
	}
	return "Error: " + err.Error()
}
