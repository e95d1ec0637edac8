package regio

import (
	"github.com/pkg/errors"
)

// Map is a Bus spanning several Windows, e.g. the CCM and one window per
// PLL. An address not covered by any window is a programming error.
type Map struct {
	windows []*Window
}

func (m *Map) Add(w *Window) {
	m.windows = append(m.windows, w)
}

func (m *Map) window(a Addr) *Window {
	for _, w := range m.windows {
		if w.Contains(a) {
			return w
		}
	}
	panic(&IOError{"map", a, errors.New("no window maps this address")})
}

func (m *Map) Read32(a Addr) uint32 {
	return m.window(a).Read32(a)
}

func (m *Map) Write32(a Addr, v uint32) {
	m.window(a).Write32(a, v)
}

// Close unmaps every window, returning the first error seen.
func (m *Map) Close() error {
	var err error
	for _, w := range m.windows {
		if te := w.Close(); err == nil {
			err = te
		}
	}
	m.windows = nil
	return err
}
