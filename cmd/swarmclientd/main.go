// Command swarmclientd runs the decentralized messaging client core:
// identity and transport, swarm resolution, namespace polling, config
// and message sync, and the group supervisor, wired together the way
// the teacher's server binary wires its router, swarm store and
// directory service, adapted to a client-side process with no inbound
// route table.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
