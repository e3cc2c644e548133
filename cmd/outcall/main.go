package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	var f requestFlags
	flag.StringVar(&f.url, "url", "", "Request URL")
	flag.StringVar(&f.method, "method", "GET", "HTTP method (GET, POST, HEAD)")
	flag.StringVar(&f.maxBytes, "max-bytes", "", "Maximum response size in bytes (default 2MiB for pricing)")
	flag.StringVar(&f.body, "body", "", "Request body")
	flag.Var(&f.headers, "header", "Request header name:value (repeatable)")
	flag.StringVar(&f.transformCanister, "transform-canister", "", "Canister hosting the transform query")
	flag.StringVar(&f.transformMethod, "transform-method", "", "Transform query method name")
	flag.StringVar(&f.transformContext, "transform-context", "", "Transform context (text, or 0x-prefixed hex)")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if *interactive {
		if err := runInteractive(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if f.url == "" {
		fmt.Fprintln(os.Stderr, "Usage: outcall -url <url> [-method GET] [-max-bytes n] [-header k:v ...] [-body s]")
		fmt.Fprintln(os.Stderr, "               [-transform-canister id -transform-method name [-transform-context s]]")
		fmt.Fprintln(os.Stderr, "       outcall -i  (interactive mode)")
		os.Exit(1)
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f requestFlags) error {
	arg, err := buildArgument(f)
	if err != nil {
		return fmt.Errorf("build argument: %w", err)
	}
	r, err := describe(arg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	for _, line := range r.lines() {
		fmt.Println(line)
	}
	return nil
}
