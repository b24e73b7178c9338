// Command shmlock-child is the second participant of the cross-process
// mutual exclusion demo. It receives the region name as its single
// argument, opens the region, waits for the creator's handoff, mutates
// the payload under the lock, and exits.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/srediag/shm-lock/pkg/protocol"
)

const (
	expectedInitial = int64(100)
	acquireTimeout  = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "child:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 2 {
		return fmt.Errorf("usage: shmlock-child <region-name>")
	}
	regionName := os.Args[1]

	fmt.Println("=== Child Process Started ===")
	fmt.Println("Child Process ID:", os.Getpid())
	fmt.Println("Child: opening shared region:", regionName)

	expect := expectedInitial
	result, err := protocol.RunParticipant(protocol.ParticipantConfig{
		RegionName:     regionName,
		ExpectInitial:  &expect,
		AcquireTimeout: acquireTimeout,
		HoldFor:        500 * time.Millisecond,
	}, func(n int64) int64 { return (n + 25) * 2 })
	if err != nil {
		return err
	}

	fmt.Println("Child: applied operation ((n + 25) * 2)")
	fmt.Println("Child: new payload:", result)
	fmt.Println("=== Child process finished successfully ===")
	return nil
}
