package channel

import (
	"os"
	"path/filepath"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const storageSize = int(unsafe.Sizeof(RecordStorage{}))

// MappedStorage is one channel file mapped into this process, shared
// between whichever side mapped it (producer on Create, consumer on
// Open) and the other side that maps the same bytes independently.
type MappedStorage struct {
	Path    string
	file    *os.File // kept open: the liveness probe counts open file descriptors, not mappings
	region  []byte
	Storage *RecordStorage
}

// Create performs the five publication steps of spec.md §4.E: create
// the schema directory, stage a uniquely-named tmp file sized to
// sizeof(RecordStorage), map it read-write shared, rename it into place
// as the publication point, then bump the beacon so consumers notice.
//
// Every failure here is fatal per spec.md §7 — callers at sink-init
// time should treat a non-nil error as terminal.
func Create(root, baseName string) (*MappedStorage, error) {
	if err := ensureSchemaDir(root, baseName); err != nil {
		return nil, err
	}
	dir := SchemaDir(root, baseName)

	var f *os.File
	var tmpPath string
	for attempt := 0; attempt < 8; attempt++ {
		tmpPath = filepath.Join(dir, tmpPrefix+randomSuffix())
		var err error
		f, err = os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o666)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, errors.Wrapf(err, "channel: create tmp file in %s", dir)
		}
	}
	if f == nil {
		return nil, errors.Errorf("channel: could not allocate a unique tmp filename in %s", dir)
	}

	if err := f.Truncate(int64(storageSize)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, errors.Wrapf(err, "channel: truncate %s", tmpPath)
	}
	if err := f.Chmod(0o666); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, errors.Wrapf(err, "channel: chmod %s", tmpPath)
	}

	region, err := unix.Mmap(int(f.Fd()), 0, storageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, errors.Wrapf(err, "channel: mmap %s", tmpPath)
	}
	// A freshly truncated file reads as all zeros, which is already the
	// correct zero-value construction for RecordStorage (empty rings).
	// f is deliberately kept open (not closed here): the liveness probe
	// in spec.md §4.E counts open file descriptors pointing at the
	// channel's device+inode, so the sink keeps its fd open for its
	// entire lifetime rather than relying on the mapping alone.

	recPath := filepath.Join(dir, recPrefix+randomSuffix())
	if err := os.Rename(tmpPath, recPath); err != nil {
		unix.Munmap(region)
		f.Close()
		os.Remove(tmpPath)
		return nil, errors.Wrapf(err, "channel: publish %s", tmpPath)
	}

	b, err := OpenBeacon(root, baseName)
	if err != nil {
		unix.Munmap(region)
		f.Close()
		return nil, errors.Wrap(err, "channel: open beacon for publish")
	}
	b.Bump()
	b.Close()

	return &MappedStorage{
		Path:    recPath,
		file:    f,
		region:  region,
		Storage: (*RecordStorage)(unsafe.Pointer(&region[0])),
	}, nil
}

// Open maps an already-published rec_ file for consumer-side access.
// The fd is kept open for the same reason as Create's: the liveness
// probe needs a visible open file descriptor to count.
func Open(path string) (*MappedStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "channel: open %s", path)
	}

	region, err := unix.Mmap(int(f.Fd()), 0, storageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "channel: mmap %s", path)
	}

	return &MappedStorage{
		Path:    path,
		file:    f,
		region:  region,
		Storage: (*RecordStorage)(unsafe.Pointer(&region[0])),
	}, nil
}

// Unmap releases this process's mapping and closes its file descriptor,
// without unlinking the file itself (spec.md §4.G: a sink's destructor
// unmaps only, never unlinks; the consumer alone decides when to
// unlink, via Reap).
func (m *MappedStorage) Unmap() error {
	if m.region == nil {
		return nil
	}
	err := unix.Munmap(m.region)
	m.region = nil
	m.Storage = nil
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
		m.file = nil
	}
	return err
}

// Reap unmaps and unlinks the backing file; only the consumer calls
// this, after the liveness probe has declared the channel dead.
func (m *MappedStorage) Reap() error {
	if err := m.Unmap(); err != nil {
		return err
	}
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "channel: unlink %s", m.Path)
	}
	return nil
}
