package regio

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

const (
	MONITOR_PROMPT = "=> "
	MONITOR_BAUD   = 115200
)

// SerialBridge is a Bus that reaches the registers through a boot monitor
// (U-Boot's md.l/mw.l commands) on the board's debug UART. It is slow, but it
// lets the whole controller run against a board that has no Linux on it yet.
type SerialBridge struct {
	rw     io.ReadWriter
	r      *bufio.Reader
	closer io.Closer
	Prompt string
}

// OpenSerialBridge opens dev with github.com/tarm/serial and waits for the
// monitor prompt.
func OpenSerialBridge(dev string, baud int) (*SerialBridge, error) {
	if baud == 0 {
		baud = MONITOR_BAUD
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        dev,
		Baud:        baud,
		ReadTimeout: 500 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't open serial port %s", dev)
	}
	b := NewSerialBridge(p)
	b.closer = p
	log.Printf("Opened monitor on %s at %d baud", dev, baud)
	return b, nil
}

// NewSerialBridge wraps an already open connection to the monitor.
func NewSerialBridge(rw io.ReadWriter) *SerialBridge {
	return &SerialBridge{
		rw:     rw,
		r:      bufio.NewReader(rw),
		Prompt: MONITOR_PROMPT,
	}
}

// command sends one line to the monitor and returns the lines it printed
// before the next prompt, without the echoed command.
func (b *SerialBridge) command(op string, a Addr, cmd string) []string {
	if _, err := io.WriteString(b.rw, cmd+"\n"); err != nil {
		panic(&IOError{op, a, err})
	}
	var sb strings.Builder
	for !strings.HasSuffix(sb.String(), b.Prompt) {
		c, err := b.r.ReadByte()
		if err != nil {
			panic(&IOError{op, a, errors.Wrapf(err, "waiting for prompt after %q", cmd)})
		}
		sb.WriteByte(c)
	}
	out := strings.TrimSuffix(sb.String(), b.Prompt)
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || l == cmd {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

func (b *SerialBridge) Read32(a Addr) uint32 {
	lines := b.command("read", a, fmt.Sprintf("md.l %08x 1", uint32(a)))
	pfx := fmt.Sprintf("%08x:", uint32(a))
	for _, l := range lines {
		if !strings.HasPrefix(strings.ToLower(l), pfx) {
			continue
		}
		f := strings.Fields(l)
		if len(f) < 2 {
			break
		}
		v, err := strconv.ParseUint(f[1], 16, 32)
		if err != nil {
			panic(&IOError{"read", a, errors.Wrapf(err, "bad md.l output %q", l)})
		}
		return uint32(v)
	}
	panic(&IOError{"read", a, errors.Errorf("no md.l output in %q", lines)})
}

func (b *SerialBridge) Write32(a Addr, v uint32) {
	lines := b.command("write", a, fmt.Sprintf("mw.l %08x %08x", uint32(a), v))
	if len(lines) != 0 {
		panic(&IOError{"write", a, errors.Errorf("monitor complained: %q", lines)})
	}
}

func (b *SerialBridge) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}
