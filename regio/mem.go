package regio

import (
	"log"
	"os"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	MEM_FILE = "/dev/mem"
)

// Window is one physically contiguous register block mapped into our
// address space.
type Window struct {
	Base Addr
	Size int
	buf  mmap.MMap
	offs uintptr
}

// MapMem opens /dev/mem and uses mmap to map a given physical address range into our address space.
// Since the mapping has to start at a page boundary, the physical address is rounded down to the
// nearest page boundary and the offset to the requested address is remembered in the Window.
func MapMem(phys Addr, size int) (*Window, error) {
	f, err := os.OpenFile(MEM_FILE, os.O_RDWR|os.O_SYNC, os.ModePerm)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open %s", MEM_FILE)
	}
	defer f.Close() // Ignore error, the mapping survives the descriptor

	pageSize := uintptr(unix.Getpagesize())
	pagemask := ^(pageSize - 1)
	mapAddr := uintptr(phys) & pagemask
	mapSize := size + int(uintptr(phys)-mapAddr)
	log.Printf("MapRegion(f, %d, RDWR, 0, %08X), physAddr %08X, mask %08X", mapSize, mapAddr, uint32(phys), pagemask)
	mm, err := mmap.MapRegion(f, mapSize, mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't map region (%08X, %d)", uint32(phys), size)
	}
	return &Window{
		Base: phys,
		Size: size,
		buf:  mm,
		offs: uintptr(phys) - mapAddr,
	}, nil
}

// Contains reports whether the whole 32-bit register at a lies inside w.
func (w *Window) Contains(a Addr) bool {
	return a >= w.Base && uint64(a)+4 <= uint64(w.Base)+uint64(w.Size)
}

func (w *Window) reg(a Addr) *uint32 {
	if !w.Contains(a) || a&3 != 0 {
		panic(&IOError{"map", a, errors.Errorf("outside window %08X+%X or unaligned", uint32(w.Base), w.Size)})
	}
	return (*uint32)(unsafe.Pointer(&w.buf[w.offs+uintptr(a-w.Base)]))
}

// Loads and stores are atomic so that the compiler never caches or elides a
// register access.

func (w *Window) Read32(a Addr) uint32 {
	return atomic.LoadUint32(w.reg(a))
}

func (w *Window) Write32(a Addr, v uint32) {
	atomic.StoreUint32(w.reg(a), v)
}

func (w *Window) Close() error {
	if w.buf == nil {
		return nil
	}
	err := w.buf.Unmap()
	w.buf = nil
	return err
}
