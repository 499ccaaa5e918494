// Command docfx-confluence publishes DocFX documentation to Confluence and
// hosts the docfx-import plugin.
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := newRootCmd()
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("docfx-confluence %s (commit: %s)\n", version, commit))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
