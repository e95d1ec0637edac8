// Package regio is the 32-bit control register shim everything else in the
// clock controller is built on. A Bus is assumed to perform each access
// atomically; an access that cannot be completed is not reported as an error
// but panics, since nothing above this layer can recover from a lost write.
package regio

import (
	"fmt"
)

// Addr is an absolute physical register address.
type Addr uint32

// Bus reads and writes 32-bit hardware control registers.
type Bus interface {
	Read32(a Addr) uint32
	Write32(a Addr, v uint32)
}

// Modify does a read-modify-write of a, clearing the bits in clear before
// setting the bits in set.
func Modify(b Bus, a Addr, clear, set uint32) {
	v := b.Read32(a)
	b.Write32(a, (v&^clear)|set)
}

// IOError is what a Bus panics with when a register access fails at the
// transport level (e.g. a serial monitor that stops answering).
type IOError struct {
	Op   string
	Addr Addr
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("regio: %s %08X: %v", e.Op, uint32(e.Addr), e.Err)
}
