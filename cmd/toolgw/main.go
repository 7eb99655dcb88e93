// Command toolgw runs the tool invocation gateway: an HTTP server that
// authenticates LLM clients, authorizes tool calls against a declarative
// policy, and proxies them to backend tool services.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "toolgw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return cmdServe()
}
