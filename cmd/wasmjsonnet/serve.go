package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wasmjsonnet/wasmjsonnet/vm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for Jsonnet evaluation",
	Long: `Start an HTTP server that evaluates Jsonnet over REST.

Endpoints:
  POST /evaluate   Evaluate a snippet, returns {"result": ...}
  GET  /health     Health check`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

type evaluateRequest struct {
	Filename string            `json:"filename,omitempty"`
	Snippet  string            `json:"snippet"`
	ExtStr   map[string]string `json:"ext_str,omitempty"`
	ExtCode  map[string]string `json:"ext_code,omitempty"`
	TLAStr   map[string]string `json:"tla_str,omitempty"`
	TLACode  map[string]string `json:"tla_code,omitempty"`
}

type evaluateResponse struct {
	Result     json.RawMessage `json:"result,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")

	// Built once to validate flags and config; request handling below
	// builds a fresh VM per request so server-wide bindings and request
	// bindings compose without leaking between requests.
	if _, err := buildVM(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	http.HandleFunc("/evaluate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Snippet == "" {
			http.Error(w, "snippet required", http.StatusBadRequest)
			return
		}

		filename := req.Filename
		if filename == "" {
			filename = "<request>"
		}

		v, err := buildVM(cmd)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for name, value := range req.ExtStr {
			v.ExtVar(name, value)
		}
		for name, value := range req.ExtCode {
			v.ExtCode(name, value)
		}
		for name, value := range req.TLAStr {
			v.TLAVar(name, value)
		}
		for name, value := range req.TLACode {
			v.TLACode(name, value)
		}

		start := time.Now()
		out, err := v.EvaluateSnippet(r.Context(), filename, req.Snippet)
		resp := evaluateResponse{DurationMs: time.Since(start).Milliseconds()}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			var iie *vm.InvalidInputError
			switch {
			case errors.As(err, &iie):
				status = http.StatusBadRequest
			case isEvaluationError(err):
				status = http.StatusUnprocessableEntity
			default:
				status = http.StatusInternalServerError
			}
		} else {
			resp.Result = json.RawMessage(out)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	})

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(os.Stderr, "wasmjsonnet server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isEvaluationError(err error) bool {
	var ee *vm.EvaluationError
	return errors.As(err, &ee)
}
