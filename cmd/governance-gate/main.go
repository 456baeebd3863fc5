// Command governance-gate is a thin CLI wrapper around the governance
// library: it never implements its own policy or audit logic, only reads
// and displays state the library already owns.
package main

import "github.com/web4/governance/cmd/governance-gate/cmd"

func main() {
	cmd.Execute()
}
