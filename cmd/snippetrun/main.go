// Command snippetrun runs untrusted Python and JavaScript snippets inside
// a wazero WASM sandbox, as a one-shot CLI, an interactive REPL, or an
// HTTP server.
package main

func main() {
	Execute()
}
