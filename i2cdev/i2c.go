// Package i2cdev talks to I2C devices through the Linux i2c-dev interface,
// /dev/i2c-N.
package i2cdev

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// From include/uapi/linux/i2c-dev.h and i2c.h. These request numbers
// predate the _IOC encoding.
const (
	I2C_FUNCS = 0x0705
	I2C_RDWR  = 0x0707

	I2C_M_RD = 0x0001

	I2C_FUNC_I2C = 0x00000001
)

// i2cMsg mirrors struct i2c_msg.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   *byte
}

// i2cRdwr mirrors struct i2c_rdwr_ioctl_data.
type i2cRdwr struct {
	msgs  *i2cMsg
	nmsgs uint32
}

// Bus is one i2c-dev adapter. It satisfies drivers.I2C.
type Bus struct {
	f *os.File
}

// Open opens /dev/i2c-n.
func Open(n int) (*Bus, error) {
	return OpenPath(fmt.Sprintf("/dev/i2c-%d", n))
}

func OpenPath(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	var funcs uint
	if err := ioctl(f.Fd(), I2C_FUNCS, unsafe.Pointer(&funcs)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed I2C_FUNCS on %s", path)
	}
	if funcs&I2C_FUNC_I2C == 0 {
		f.Close()
		return nil, errors.Errorf("%s can't do plain I2C transfers (funcs %08x)", path, funcs)
	}
	log.Printf("i2c: opened %s", path)
	return &Bus{f: f}, nil
}

// messages builds a combined write-then-read transfer. Either half may be
// empty.
func messages(addr uint16, w, r []byte) ([]i2cMsg, error) {
	if len(w) > 0xFFFF || len(r) > 0xFFFF {
		return nil, errors.Errorf("i2c: transfer of %d/%d bytes too long", len(w), len(r))
	}
	var msgs []i2cMsg
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, len: uint16(len(w)), buf: &w[0]})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: addr, flags: I2C_M_RD, len: uint16(len(r)), buf: &r[0]})
	}
	return msgs, nil
}

// Tx writes w to the device at addr, then reads len(r) bytes with a
// repeated start in between.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	msgs, err := messages(addr, w, r)
	if err != nil || len(msgs) == 0 {
		return err
	}
	data := i2cRdwr{msgs: &msgs[0], nmsgs: uint32(len(msgs))}
	err = ioctl(b.f.Fd(), I2C_RDWR, unsafe.Pointer(&data))
	runtime.KeepAlive(msgs)
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	if err != nil {
		return errors.Wrapf(err, "i2c: transfer to %02x", addr)
	}
	return nil
}

func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (b *Bus) Close() error {
	return b.f.Close()
}

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
