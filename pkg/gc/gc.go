// Package gc implements the generational garbage collector:
// a root directory holding gen-0..gen-(N-1) CAS snapshots,
// rotated under a file lock, with a deep-uplink operation that promotes
// referenced objects into generation 0 on every non-newest-generation hit.
package gc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/Sumatoshi-tech/codefang/pkg/cas"
	"github.com/Sumatoshi-tech/codefang/pkg/digest"
)

// ErrNoGenerations is returned when NumGenerations is not positive.
var ErrNoGenerations = errors.New("gc: num_generations must be >= 1")

const (
	lockFileName = "lock"
	dirPerm      = 0o750
)

// Collector owns a rotation of CAS generations rooted at Root.
type Collector struct {
	Root           string
	Flavor         digest.HashFlavor
	NumGenerations int

	lockFD int

	// generations[0] is the newest.
	generations []*cas.Store
}

// Open prepares (creating if necessary) a generational CAS rooted at root
// with n generations, and opens the shared lock-file descriptor used for
// flock-based coordination.
func Open(root string, flavor digest.HashFlavor, n int) (*Collector, error) {
	if n < 1 {
		return nil, ErrNoGenerations
	}

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("gc: mkdir root: %w", err)
	}

	lockPath := filepath.Join(root, lockFileName)

	fd, err := unix.Open(lockPath, unix.O_RDWR|unix.O_CREAT, 0o640)
	if err != nil {
		return nil, fmt.Errorf("gc: open lock file: %w", err)
	}

	c := &Collector{
		Root:           root,
		Flavor:         flavor,
		NumGenerations: n,
		lockFD:         fd,
	}

	if err := c.openGenerations(); err != nil {
		unix.Close(fd)

		return nil, err
	}

	return c, nil
}

func (c *Collector) genDir(i int) string {
	return filepath.Join(c.Root, "gen-"+strconv.Itoa(i))
}

func (c *Collector) openGenerations() error {
	c.generations = make([]*cas.Store, c.NumGenerations)

	for i := range c.generations {
		dir := c.genDir(i)
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("gc: mkdir %s: %w", dir, err)
		}
	}

	for i := range c.generations {
		idx := i
		c.generations[i] = cas.New(c.genDir(i), c.Flavor, c.makeExists(idx))
	}

	return nil
}

// Close releases the lock-file descriptor.
func (c *Collector) Close() error {
	return unix.Close(c.lockFD)
}

// Newest returns the generation-0 store.
func (c *Collector) Newest() *cas.Store {
	return c.generations[0]
}

func (c *Collector) lockShared() error {
	return unix.Flock(c.lockFD, unix.LOCK_SH)
}

func (c *Collector) lockExclusive() error {
	return unix.Flock(c.lockFD, unix.LOCK_EX)
}

func (c *Collector) unlock() error {
	return unix.Flock(c.lockFD, unix.LOCK_UN)
}

// removeMePath is the rename target for the generation being evicted,
// namespaced by pid so concurrent collectors on the same root (e.g. a
// crashed prior run) never collide.
func (c *Collector) removeMePath() string {
	return filepath.Join(c.Root, fmt.Sprintf("remove-me-%d", os.Getpid()))
}

// Trigger runs the five-step generation rotation protocol.
func (c *Collector) Trigger() error {
	if err := c.lockShared(); err != nil {
		return fmt.Errorf("gc: acquire shared lock: %w", err)
	}

	removeMe := c.removeMePath()
	if err := os.RemoveAll(removeMe); err != nil {
		_ = c.unlock()

		return fmt.Errorf("gc: clear leftover remove-me: %w", err)
	}

	if err := c.unlock(); err != nil {
		return fmt.Errorf("gc: release shared lock: %w", err)
	}

	if err := c.lockExclusive(); err != nil {
		return fmt.Errorf("gc: acquire exclusive lock: %w", err)
	}

	if err := c.rotate(removeMe); err != nil {
		_ = c.unlock()

		return err
	}

	if err := c.unlock(); err != nil {
		return fmt.Errorf("gc: release exclusive lock: %w", err)
	}

	if err := c.lockShared(); err != nil {
		return fmt.Errorf("gc: acquire shared lock for sweep: %w", err)
	}

	defer func() { _ = c.unlock() }()

	if err := os.RemoveAll(removeMe); err != nil {
		return fmt.Errorf("gc: sweep remove-me: %w", err)
	}

	return nil
}

// rotate performs steps 3 of Trigger under the exclusive lock: the oldest
// generation is renamed out of the way, then each remaining generation
// shifts up by one, and a fresh empty generation-0 is created.
func (c *Collector) rotate(removeMe string) error {
	last := c.NumGenerations - 1

	if err := os.Rename(c.genDir(last), removeMe); err != nil {
		return fmt.Errorf("gc: evict oldest generation: %w", err)
	}

	for i := last; i >= 1; i-- {
		if err := os.Rename(c.genDir(i-1), c.genDir(i)); err != nil {
			return fmt.Errorf("gc: rotate generation %d: %w", i, err)
		}
	}

	if err := os.MkdirAll(c.genDir(0), dirPerm); err != nil {
		return fmt.Errorf("gc: recreate generation 0: %w", err)
	}

	return c.openGenerations()
}

// makeExists builds the exists-callback for generation idx. Only generation
// 0's callback (the live view) deep-uplinks a hit found in an older
// generation before reporting success; the callbacks of older generations
// report presence only, so deepUplink, which reads through them, never
// re-enters itself.
func (c *Collector) makeExists(idx int) cas.ExistsFunc {
	return func(d digest.Digest, objType digest.ObjectType) bool {
		for i := idx; i < len(c.generations); i++ {
			store := c.generations[i]
			if !store.LocalHas(d, objType) {
				continue
			}

			if idx == 0 && i > 0 {
				if err := c.deepUplink(i, d, objType); err != nil {
					return false
				}
			}

			return true
		}

		return false
	}
}

// Has searches all generations newest-to-oldest for d, deep-uplinking into
// generation 0 on any hit in an older generation.
func (c *Collector) Has(d digest.Digest, objType digest.ObjectType) bool {
	return c.makeExists(0)(d, objType)
}

// deepUplink recursively copies d (and, for trees, all descendants) from
// generation src into generation 0, short-circuiting objects already
// present there.
func (c *Collector) deepUplink(src int, d digest.Digest, objType digest.ObjectType) error {
	dst := c.generations[0]
	if dst.LocalHas(d, objType) {
		return nil
	}

	data, err := c.generations[src].ReadBytes(d, objType)
	if err != nil {
		return fmt.Errorf("gc: read for uplink: %w", err)
	}

	if objType == digest.Tree {
		entries, err := cas.ParseTreeEntriesForUplink(data)
		if err != nil {
			return fmt.Errorf("gc: parse tree for uplink: %w", err)
		}

		for _, e := range entries {
			childType := digest.File
			if e.IsTree {
				childType = digest.Tree
			}

			if err := c.deepUplink(src, e.Digest, childType); err != nil {
				return err
			}
		}
	}

	if err := dst.StoreBytesExpecting(d, data, objType); err != nil {
		return fmt.Errorf("gc: store during uplink: %w", err)
	}

	return nil
}
