// Command download fetches the jsonnet.wasm artifact into the engine
// package so it can be embedded at build time. With no arguments it fetches
// the pinned default; pass a URL and output path to override.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

const (
	defaultURL    = "https://github.com/wasmjsonnet/jsonnet-wasm/releases/download/v0.21.0/jsonnet.wasm"
	defaultOutput = "engine/jsonnet/jsonnet.wasm"
)

func main() {
	url, output := defaultURL, defaultOutput
	switch len(os.Args) {
	case 1:
	case 3:
		url, output = os.Args[1], os.Args[2]
	default:
		fmt.Fprintln(os.Stderr, "usage: download [<url> <output>]")
		os.Exit(1)
	}

	if _, err := os.Stat(output); err == nil {
		return
	}

	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "download failed: %s\n", resp.Status)
		os.Exit(1)
	}

	f, err := os.Create(output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
