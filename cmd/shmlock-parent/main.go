// Command shmlock-parent is the creating side of the cross-process
// mutual exclusion demo. It allocates the shared region, initializes the
// payload, holds the lock while spawning the child, then hands off,
// waits, and applies the final mutation before tearing the region down.
//
// The child binary's path is exchanged out-of-band like the region name:
// by default a shmlock-child executable next to this one is used.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/shm-lock/pkg/protocol"
	"github.com/srediag/shm-lock/pkg/shm"
)

const initialPayload = 100

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "parent:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		regionName = flag.String("region", fmt.Sprintf("shmlock_demo_%d", os.Getpid()), "shared region name")
		childPath  = flag.String("child", "", "path to the shmlock-child binary (default: sibling of this binary)")
		variant    = flag.String("variant", "", "lock variant: futex or polled (default: platform preference)")
		holdFor    = flag.Duration("hold", 500*time.Millisecond, "how long to hold the initial lock after spawning the child")
	)
	flag.Parse()

	kind, err := parseVariant(*variant)
	if err != nil {
		return err
	}

	fmt.Println("=== Parent Process Started ===")
	fmt.Println("Process ID:", os.Getpid())

	journal := protocol.NewJournal()
	creator, err := protocol.NewCreator(protocol.CreatorConfig{
		RegionName:     *regionName,
		InitialPayload: initialPayload,
		Kind:           kind,
		Journal:        journal,
	})
	if err != nil {
		return err
	}
	defer func() {
		if terr := creator.Teardown(); terr != nil {
			fmt.Fprintln(os.Stderr, "parent teardown:", terr)
		}
	}()

	fmt.Println("Shared region created:", creator.RegionName())
	fmt.Println("Initial payload:", initialPayload)
	serveHealth(creator)

	child := exec.Command(childBinary(*childPath), creator.RegionName())
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Start(); err != nil {
		return fmt.Errorf("spawn child: %w", err)
	}
	fmt.Println("Child process spawned with PID:", child.Process.Pid)

	time.Sleep(*holdFor)

	fmt.Println("Parent: releasing lock, child should now acquire it")
	if err := creator.Handoff(); err != nil {
		return err
	}

	if err := child.Wait(); err != nil {
		return fmt.Errorf("child process failed: %w", err)
	}
	fmt.Println("Child process completed")

	final, err := creator.Finish(func(n int64) int64 { return n*3 + 50 })
	if err != nil {
		return err
	}

	fmt.Println("\n=== Parent process completed successfully ===")
	fmt.Println("Summary:")
	fmt.Println("- Initial value:", initialPayload)
	fmt.Printf("- Child operation ((n + 25) * 2) = %d\n", (initialPayload+25)*2)
	fmt.Printf("- Parent operation (n * 3 + 50) = %d\n", final)
	for _, e := range journal.Drain() {
		fmt.Println("-", e)
	}
	return nil
}

func parseVariant(s string) (shm.LockKind, error) {
	switch s {
	case "":
		return shm.LockKindUnset, nil
	case "futex":
		return shm.LockKindFutex, nil
	case "polled":
		return shm.LockKindPolled, nil
	default:
		return 0, fmt.Errorf("unknown lock variant %q", s)
	}
}

func childBinary(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	self, err := os.Executable()
	if err != nil {
		return "shmlock-child"
	}
	name := "shmlock-child"
	if filepath.Ext(self) == ".exe" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(self), name)
}

// serveHealth exposes liveness/readiness on SHMLOCK_DEBUG_PORT. Purely
// diagnostic; the protocol does not depend on it.
func serveHealth(creator *protocol.Creator) {
	port := os.Getenv("SHMLOCK_DEBUG_PORT")
	if port == "" {
		return
	}
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("region-mapped", func() error {
		if creator.Region().Header() == nil {
			return fmt.Errorf("region unmapped")
		}
		return nil
	})
	health.AddReadinessCheck("lock-configured", func() error {
		if creator.Region().Header().LockKind() == shm.LockKindUnset {
			return fmt.Errorf("lock not configured")
		}
		return nil
	})
	go func() {
		if err := http.ListenAndServe(":"+port, health); err != nil {
			fmt.Fprintln(os.Stderr, "health endpoint:", err)
		}
	}()
}
