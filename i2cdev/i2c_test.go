package i2cdev

import (
	"testing"
	"unsafe"

	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*Bus)(nil)

func TestMessageLayout(t *testing.T) {
	// struct i2c_msg is three u16s and a pointer, which on both 32 and 64
	// bit ARM starts at offset 8.
	ptr := unsafe.Sizeof(uintptr(0))
	if got := unsafe.Offsetof(i2cMsg{}.buf); got != 8 {
		t.Errorf("i2c_msg.buf offset, got: %d, want 8", got)
	}
	if got := unsafe.Sizeof(i2cMsg{}); got != 8+ptr {
		t.Errorf("sizeof(i2c_msg), got: %d, want %d", got, 8+ptr)
	}
}

func TestMessages(t *testing.T) {
	w := []byte{24}
	r := make([]byte, 3)
	tests := []struct {
		w, r  []byte
		flags []uint16
		lens  []uint16
	}{
		{w, r, []uint16{0, I2C_M_RD}, []uint16{1, 3}},
		{w, nil, []uint16{0}, []uint16{1}},
		{nil, r, []uint16{I2C_M_RD}, []uint16{3}},
		{nil, nil, nil, nil},
	}
	for i, test := range tests {
		msgs, err := messages(0x08, test.w, test.r)
		if err != nil {
			t.Errorf("%d: messages failed: %v", i, err)
			continue
		}
		if len(msgs) != len(test.flags) {
			t.Errorf("%d: got: %d messages, want %d", i, len(msgs), len(test.flags))
			continue
		}
		for j, m := range msgs {
			if m.addr != 0x08 || m.flags != test.flags[j] || m.len != test.lens[j] {
				t.Errorf("%d/%d: got: %+v, want flags %x len %d", i, j, m, test.flags[j], test.lens[j])
			}
		}
	}
	if _, err := messages(0x08, make([]byte, 0x10000), nil); err == nil {
		t.Errorf("oversized transfer accepted")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := OpenPath("/nonexistent/i2c-9"); err == nil {
		t.Errorf("OpenPath on a missing device succeeded")
	}
}
