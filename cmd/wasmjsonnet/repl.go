package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive Jsonnet REPL",
	Long: `Start an interactive REPL (Read-Eval-Print Loop).

Features:
  - Command history (up/down arrows)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)
  - 'local' definitions persist and apply to later expressions

Type 'exit' or 'quit' to end the session, or press Ctrl+D.
Type ':reset' to drop accumulated local definitions.`,
	Run: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.wasmjsonnet_history)")
	rootCmd.AddCommand(replCmd)
}

// replState accumulates local bindings so that definitions entered on one
// line are visible to expressions entered later.
type replState struct {
	locals []string
}

// isLocalDef reports whether the line only introduces bindings. Such lines
// are stored, not evaluated.
func isLocalDef(line string) bool {
	return strings.HasPrefix(line, "local ") && strings.HasSuffix(line, ";")
}

func (s *replState) program(expr string) string {
	if len(s.locals) == 0 {
		return expr
	}
	return strings.Join(s.locals, "\n") + "\n" + expr
}

func runRepl(cmd *cobra.Command, args []string) {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".wasmjsonnet_history")
	}

	v, err := buildVM(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            ">>> ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	version, err := v.Version(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "wasmjsonnet REPL, jsonnet %s (type 'exit' to quit, Ctrl+D to exit)\n", version)

	state := &replState{}
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(">>> ")
				}
				continue
			}
			if err == io.EOF {
				fmt.Println()
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			break
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt("... ")
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(">>> ")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if line == ":reset" {
			state.locals = nil
			continue
		}

		if isLocalDef(line) {
			// validate the binding before keeping it
			probe := state.program(line + " null")
			if _, err := v.EvaluateSnippet(context.Background(), "<repl>", probe); err != nil {
				fmt.Fprintln(os.Stderr, errorMessage(err))
				continue
			}
			state.locals = append(state.locals, line)
			continue
		}

		out, err := v.EvaluateSnippet(context.Background(), "<repl>", state.program(line))
		if err != nil {
			fmt.Fprintln(os.Stderr, errorMessage(err))
			continue
		}
		fmt.Print(out)
		if !strings.HasSuffix(out, "\n") {
			fmt.Println()
		}
	}
}
