package clk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ID names a clock. Peripherals with several identical clocks (uart_clk.0 to
// uart_clk.2) share a Name and differ by Index; Index is -1 for clocks that
// only exist once.
type ID struct {
	Name  string
	Index int
}

// Named returns the ID of a single-instance clock.
func Named(name string) ID {
	return ID{name, -1}
}

func (id ID) String() string {
	if id.Index < 0 {
		return id.Name
	}
	return fmt.Sprintf("%s.%d", id.Name, id.Index)
}

// ParseID is the inverse of ID.String.
func ParseID(s string) (ID, error) {
	if s == "" {
		return ID{}, errors.New("empty clock name")
	}
	i := strings.LastIndexByte(s, '.')
	if i <= 0 {
		return Named(s), nil
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil || n < 0 {
		return ID{}, errors.Errorf("bad clock instance in %q", s)
	}
	return ID{s[:i], n}, nil
}
