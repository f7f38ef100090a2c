package channel

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Beacon is the channelsVersions file: a single little-endian u64
// counter, shared by every producer and consumer for baseName, bumped
// on each publication (spec.md §4.F).
type Beacon struct {
	region []byte
	value  *uint64
}

// OpenBeacon opens or creates the beacon file for baseName, truncating
// it to 8 bytes only on first creation — a subsequent truncate on an
// already-sized file is a no-op, so racing producers opening
// concurrently never zero a counter another one is about to bump.
func OpenBeacon(root, baseName string) (*Beacon, error) {
	if err := ensureSchemaDir(root, baseName); err != nil {
		return nil, err
	}
	path := BeaconPath(root, baseName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "channel: open beacon %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "channel: stat beacon %s", path)
	}
	if info.Size() != 8 {
		if err := f.Truncate(8); err != nil {
			return nil, errors.Wrapf(err, "channel: truncate beacon %s", path)
		}
	}

	region, err := unix.Mmap(int(f.Fd()), 0, 8, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "channel: mmap beacon %s", path)
	}

	return &Beacon{
		region: region,
		value:  (*uint64)(unsafe.Pointer(&region[0])),
	}, nil
}

// Bump atomically increments the counter (producer side, on publish).
func (b *Beacon) Bump() uint64 {
	return atomic.AddUint64(b.value, 1)
}

// Load reads the current counter value (consumer side, on poll).
// Wraparound is not a concern for realistic workloads (spec.md §3).
func (b *Beacon) Load() uint64 {
	return atomic.LoadUint64(b.value)
}

// Close releases the mapping. The beacon file itself is never unlinked;
// it is shared for the lifetime of baseName's directory.
func (b *Beacon) Close() error {
	if b.region == nil {
		return nil
	}
	err := unix.Munmap(b.region)
	b.region = nil
	b.value = nil
	return err
}
