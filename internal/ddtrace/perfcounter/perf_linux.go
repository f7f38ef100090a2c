//go:build linux

package perfcounter

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// perfEventAttr mirrors struct perf_event_attr from linux/perf_event.h,
// reproduced field-for-field (grounded on the mmap/attr-construction
// shape in the ebpf perf reader reference code) rather than imported,
// since x/sys/unix does not export this struct on all platforms/versions.
type perfEventAttr struct {
	Type             uint32
	Size             uint32
	Config           uint64
	SamplePeriod     uint64
	SampleType       uint64
	ReadFormat       uint64
	Bits             uint64 // disabled, inherit, pinned, exclusive, exclude_* flags
	WakeupEvents     uint32
	BPType           uint32
	BPAddr           uint64
	Config1          uint64
	Config2          uint64
	BranchSampleType uint64
	SampleRegsUser   uint64
	SampleStackUser  uint32
	ClockID          int32
	SampleRegsIntr   uint64
	AuxWatermark     uint32
	SampleMaxStack   uint16
	Reserved2        uint16
}

const (
	bitDisabled     uint64 = 1 << 0
	bitExcludeUser  uint64 = 1 << 4
	bitExcludeKernel uint64 = 1 << 5
	bitExcludeHV    uint64 = 1 << 6
	bitExcludeIdle  uint64 = 1 << 7
)

// perfEventMmapPage mirrors the documented header of the mmap'd counter
// page (perf_event_open(2), "the structure ... perf_event_mmap_page").
// Only the seqlock and rdpmc-index fields are used; the sample ring
// region beyond perfMmapPageSize is left unmapped since this backend
// never reads samples, only the running count.
type perfEventMmapPage struct {
	Version      uint32
	CompatVersion uint32
	Lock         uint32 // seqlock: odd while the kernel is updating
	Index        uint32 // rdpmc hardware index + 1; 0 means "use read(2)"
	Offset       int64
	TimeEnabled  uint64
	TimeRunning  uint64
	Capabilities uint64
	PMCWidth     uint16
	TimeShift    uint16
	TimeMult     uint32
	TimeOffset   uint64
	TimeZero     uint64
	Size         uint32
}

const perfMmapPageSize = 4096

func perfEventOpen(attr *perfEventAttr, pid, cpu, groupFD int, flags uintptr) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_PERF_EVENT_OPEN,
		uintptr(unsafe.Pointer(attr)),
		uintptr(pid),
		uintptr(cpu),
		uintptr(groupFD),
		flags,
		0,
	)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

type perfEventHandle struct {
	fd   int
	page []byte // mmap'd perfEventMmapPage, perfMmapPageSize bytes
	meta *perfEventMmapPage
}

func openPerfEvent(kind Kind, flags ExclusionFlags) (Handle, error) {
	ev, ok := lookupEvent(kind)
	if !ok {
		return nil, ErrUnsupportedCombination
	}

	attr := perfEventAttr{
		Type:   ev.typ,
		Config: ev.config,
		Bits:   bitDisabled,
	}
	attr.Size = uint32(unsafe.Sizeof(attr))
	if flags.Kernel {
		attr.Bits |= bitExcludeKernel
	}
	if flags.Hypervisor {
		attr.Bits |= bitExcludeHV
	}
	if flags.Idle {
		attr.Bits |= bitExcludeIdle
	}
	_ = flags.Guest // guest-mode exclusion has no generic bit outside a hypervisor host; accepted but not wired

	fd, err := perfEventOpen(&attr, 0, -1, -1, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "perfcounter: perf_event_open(%s)", kind)
	}

	h := &perfEventHandle{fd: fd}

	page, err := unix.Mmap(fd, 0, perfMmapPageSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// The mmap'd fast-read page is an optimization, not a
		// requirement: read(2) on the fd still works without it.
		h.page = nil
		h.meta = nil
	} else {
		h.page = page
		h.meta = (*perfEventMmapPage)(unsafe.Pointer(&page[0]))
	}

	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		h.Close()
		return nil, errors.Wrap(err, "perfcounter: enable")
	}

	return h, nil
}

// Read returns the counter's current value, preferring the mmap'd fast
// path (seqlock-guarded rdpmc) and falling back to read(2) whenever the
// fast path isn't available for this counter or the CPU rdpmc index
// isn't usable right now (spec.md §4.D: "an unusable index degrades to
// the portable read, it does not error").
func (h *perfEventHandle) Read() (uint64, error) {
	if h.meta == nil {
		return h.readSyscall()
	}
	if v, ok := h.readFast(); ok {
		return v, nil
	}
	return h.readSyscall()
}

func (h *perfEventHandle) readFast() (uint64, bool) {
	for attempt := 0; attempt < 64; attempt++ {
		lock := atomic.LoadUint32(&h.meta.Lock)
		if lock&1 != 0 {
			continue // kernel mid-update; retry
		}

		idx := h.meta.Index
		offset := h.meta.Offset

		if idx == 0 {
			return 0, false // rdpmc unusable for this event right now
		}

		count, ok := rdpmc(idx - 1)
		if !ok {
			return 0, false
		}
		count += uint64(offset)

		if atomic.LoadUint32(&h.meta.Lock) == lock {
			return count, true
		}
		// seqlock changed mid-read; retry
	}
	return 0, false
}

func (h *perfEventHandle) readSyscall() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(h.fd, buf[:])
	if err != nil {
		return 0, errors.Wrap(err, "perfcounter: read")
	}
	if n < 8 {
		return 0, errors.Errorf("perfcounter: short read (%d bytes)", n)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (h *perfEventHandle) Close() error {
	if h.page != nil {
		_ = unix.Munmap(h.page)
	}
	if h.fd >= 0 {
		return unix.Close(h.fd)
	}
	return nil
}
