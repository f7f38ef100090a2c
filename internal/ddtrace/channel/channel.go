// Package channel implements the shared-memory directory/file layout
// that backs one producer thread's pair of SPSC rings, plus the
// channels-version beacon producers bump on publication.
//
// Layout (fixed, see SchemaVersion):
//
//	<root>/<baseName>/<SchemaVersion>/
//	    channelsVersions     beacon file, mode 0666
//	    rec_<random>         one per live producer thread
//	    tmp_<random>         transient, renamed to rec_ on publish
package channel

import (
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// errUnsupportedPlatform is returned by liveness probes that have no
// implementation on the current platform.
var errUnsupportedPlatform = errors.New("channel: liveness probe unsupported on this platform")

// SchemaVersion gates binary compatibility between producer and
// consumer; a directory whose path component doesn't match this value
// is never opened by either side (supplemented from original_source/,
// see DESIGN.md).
const SchemaVersion = "4"

// RecordQueueSize is the compile-time capacity of each ring in a
// channel's RecordStorage. Go arrays have no const-generic length, so
// unlike most of this module's other tunables this one cannot be
// overridden by procinit.LoadConfig at runtime; a differing value
// requires a rebuild (and, in production, a SchemaVersion bump, since
// it changes sizeof(RecordStorage)).
const RecordQueueSize = 1024

// recPrefix and tmpPrefix name the two file kinds inside a schema
// directory; RecordGlob below and Create in mapped.go depend on these.
const (
	recPrefix = "rec_"
	tmpPrefix = "tmp_"
)

// SchemaDir returns the versioned directory for baseName under root.
func SchemaDir(root, baseName string) string {
	return filepath.Join(root, baseName, SchemaVersion)
}

// BeaconPath returns the path to the channelsVersions beacon file.
func BeaconPath(root, baseName string) string {
	return filepath.Join(SchemaDir(root, baseName), "channelsVersions")
}

// RecordGlob returns the glob pattern matching published channel files.
func RecordGlob(root, baseName string) string {
	return filepath.Join(SchemaDir(root, baseName), recPrefix+"*")
}

// ensureSchemaDir creates <root>/<baseName>/<SchemaVersion> idempotently
// with world-writable permissions, temporarily zeroing the process umask
// as spec.md §4.E requires so the directory is usable by unrelated
// producer and consumer processes regardless of their umask.
func ensureSchemaDir(root, baseName string) error {
	old := syscallUmask(0)
	defer syscallUmask(old)

	dir := SchemaDir(root, baseName)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return errors.Wrapf(err, "channel: create schema dir %s", dir)
	}
	return nil
}

// randomSuffix produces the "_XXXXXX"-style unique token used for both
// tmp_ and rec_ filenames.
func randomSuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 12)
	for i := range buf {
		buf[i] = letters[rand.Intn(len(letters))]
	}
	return string(buf)
}
