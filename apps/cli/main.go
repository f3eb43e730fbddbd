package main

import "github.com/abdul-hamid-achik/formstream/apps/cli/cmd"

// Set by the linker at release time
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Execute(version, buildTime)
}
