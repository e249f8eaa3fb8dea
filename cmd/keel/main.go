// Command keel resolves service manifests into environment-specific
// configuration.
package main

import "github.com/cameronsjo/keel/internal/cmd"

func main() {
	cmd.Execute()
}
