// Package mmio drives the i.MX SAI blocks and audio PLLs through a
// /dev/mem register mapping.
package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Window is a mapped register range. Accesses are 32-bit and go straight
// to the device.
type Window struct {
	file *os.File
	page []byte // whole mapping, page aligned
	mem  []byte // requested range within page
}

// Map maps size bytes of physical memory at base from dev.
func Map(dev string, base uint64, size int) (*Window, error) {
	f, err := os.OpenFile(dev, os.O_RDWR|os.O_SYNC, 0660)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev, err)
	}
	pageSize := uint64(unix.Getpagesize())
	start := base &^ (pageSize - 1)
	skip := int(base - start)
	page, err := unix.Mmap(int(f.Fd()), int64(start), skip+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s at %#x: %w", dev, base, err)
	}
	return &Window{file: f, page: page, mem: page[skip : skip+size]}, nil
}

// newWindow wraps plain memory, for tests.
func newWindow(mem []byte) *Window {
	return &Window{mem: mem}
}

func (w *Window) Close() error {
	if w.file == nil {
		return nil
	}
	err := unix.Munmap(w.page)
	w.file.Close()
	w.file = nil
	w.page, w.mem = nil, nil
	return err
}

func (w *Window) Len() int { return len(w.mem) }

func (w *Window) reg(off int) *uint32 {
	if off < 0 || off+4 > len(w.mem) || off&3 != 0 {
		panic(fmt.Sprintf("mmio: register offset %#x outside window of %#x", off, len(w.mem)))
	}
	return (*uint32)(unsafe.Pointer(&w.mem[off]))
}

func (w *Window) Read32(off int) uint32 {
	return atomic.LoadUint32(w.reg(off))
}

func (w *Window) Write32(off int, v uint32) {
	atomic.StoreUint32(w.reg(off), v)
}

// Modify32 clears then sets bits in a register.
func (w *Window) Modify32(off int, clr, set uint32) {
	w.Write32(off, w.Read32(off)&^clr|set)
}
