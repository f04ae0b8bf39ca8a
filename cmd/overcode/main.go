// Command overcode is the CLI entrypoint wiring the monitor daemon, the
// supervisor daemon, the actuator, and the read-only HTTP surface together.
// The full CLI surface is out of scope for this module (SPEC_FULL.md §1);
// this is the minimal entrypoint a real deployment needs to actually run
// the daemons and drive sessions, grounded on the teacher's cmd/gt ->
// internal/cmd wiring.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "overcode:", err)
		os.Exit(exitCodeFor(err))
	}
}
