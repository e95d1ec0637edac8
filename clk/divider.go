package clk

import (
	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

const (
	// Composite dividers have a 3-bit pre-divider and a 6-bit post-divider.
	PRE_WIDTH  = 3
	POST_WIDTH = 6
	MAX_PRE    = 1 << PRE_WIDTH
	MAX_POST   = 1 << POST_WIDTH
)

// SolveDivider splits div into pre*post with pre in [1,8] and post in
// [1,64], minimizing |pre*post - div| and preferring the larger pre on
// ties. Below 8 the pre-divider alone is exact; from 512 on both fields
// saturate.
func SolveDivider(div uint32) (pre, post uint32) {
	if div == 0 {
		div = 1
	}
	if div >= MAX_PRE*MAX_POST {
		return MAX_PRE, MAX_POST
	}
	if div < MAX_PRE {
		return div, 1
	}
	best := ^uint32(0)
	for p := uint32(MAX_PRE); p >= 1; p-- {
		lo := div / p
		for _, q := range []uint32{lo, lo + 1} {
			if q < 1 || q > MAX_POST {
				continue
			}
			e := absDiff(p*q, div)
			if e < best {
				best, pre, post = e, p, q
			}
		}
	}
	return pre, post
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}

// Divider is a single integer divider field (the field holds div-1), with
// an optional busy bit and gate.
type Divider struct {
	Field Field
	Busy  Status
	Gate
}

func (d *Divider) kindName() string { return "divider" }

func (d *Divider) recalc(r *Registry, n *node, parentRate uint64) uint64 {
	return parentRate / uint64(d.Field.get(r.bus)+1)
}

func (d *Divider) roundRate(parentRate, rate uint64) uint64 {
	div := ceilDiv(parentRate, rate)
	if div < 1 {
		div = 1
	}
	if lim := uint64(d.Field.max()) + 1; div > lim {
		div = lim
	}
	return parentRate / div
}

func (d *Divider) setRate(r *Registry, n *node, parentRate, rate uint64) error {
	div := parentRate / rate
	if div == 0 || parentRate%rate != 0 {
		return errors.Wrapf(ErrInvalidRate, "%d Hz is not an integer fraction of %d Hz", rate, parentRate)
	}
	if div > uint64(d.Field.max())+1 {
		return errors.Wrapf(ErrInvalidRate, "divider %d exceeds %d", div, d.Field.max()+1)
	}
	d.write(r, n, uint32(div))
	return nil
}

func (d *Divider) setDivider(r *Registry, n *node, div uint32) error {
	if div == 0 || div > d.Field.max()+1 {
		return errors.Wrapf(ErrInvalidRate, "divider %d outside 1..%d", div, d.Field.max()+1)
	}
	d.write(r, n, div)
	return nil
}

func (d *Divider) write(r *Registry, n *node, div uint32) {
	d.Field.set(r.bus, div-1)
	d.Busy.wait(r, n.id.String())
}

// CompositeDivider is a pre/post divider pair. With no Pre field it divides
// by one.
type CompositeDivider struct {
	Pre  Field
	Post Field
	Busy Status
}

func (c *CompositeDivider) kindName() string { return "composite" }

func (c *CompositeDivider) recalc(r *Registry, n *node, parentRate uint64) uint64 {
	if !c.Pre.valid() {
		return parentRate
	}
	pre := uint64(c.Pre.get(r.bus) + 1)
	post := uint64(c.Post.get(r.bus) + 1)
	return parentRate / (pre * post)
}

// validate rejects pre and post fields that share bits of one register.
func (c *CompositeDivider) validate(r *Registry) error {
	if !c.Pre.valid() {
		return nil
	}
	if !c.Post.valid() {
		return errors.New("composite divider without post field")
	}
	if c.Pre.Reg == c.Post.Reg && c.Pre.mask()&c.Post.mask() != 0 {
		return errors.Errorf("pre (%08X) and post (%08X) divider fields overlap", c.Pre.mask(), c.Post.mask())
	}
	return nil
}

// limit is the largest total division the two fields can hold.
func (c *CompositeDivider) limit() uint64 {
	return uint64(c.Pre.max()+1) * uint64(c.Post.max()+1)
}

// split is SolveDivider for fields narrower than the usual 3+6 bits.
func (c *CompositeDivider) split(div uint32) (pre, post uint32) {
	if c.Pre.Width == PRE_WIDTH && c.Post.Width == POST_WIDTH {
		return SolveDivider(div)
	}
	best := ^uint32(0)
	for p := c.Pre.max() + 1; p >= 1; p-- {
		for q := uint32(1); q <= c.Post.max()+1; q++ {
			if e := absDiff(p*q, div); e < best {
				best, pre, post = e, p, q
			}
		}
	}
	return pre, post
}

func (c *CompositeDivider) roundRate(parentRate, rate uint64) uint64 {
	if !c.Pre.valid() {
		return parentRate
	}
	div := ceilDiv(parentRate, rate)
	if div > c.limit() {
		div = c.limit()
	}
	pre, post := c.split(uint32(div))
	return parentRate / uint64(pre*post)
}

func (c *CompositeDivider) setRate(r *Registry, n *node, parentRate, rate uint64) error {
	if !c.Pre.valid() {
		return ErrNotSupported
	}
	div := parentRate / rate
	if div == 0 || parentRate%rate != 0 {
		return errors.Wrapf(ErrInvalidRate, "%d Hz is not an integer fraction of %d Hz", rate, parentRate)
	}
	if div > c.limit() {
		return errors.Wrapf(ErrInvalidRate, "divider %d exceeds %d", div, c.limit())
	}
	pre, post := c.split(uint32(div))
	if uint64(pre*post) != div || pre-1 > c.Pre.max() || post-1 > c.Post.max() {
		return errors.Wrapf(ErrInvalidRate, "divider %d has no pre/post split", div)
	}
	if c.Pre.Reg == c.Post.Reg {
		regio.Modify(r.bus, c.Pre.Reg, c.Pre.mask()|c.Post.mask(),
			(pre-1)<<c.Pre.Shift|(post-1)<<c.Post.Shift)
	} else {
		c.Pre.set(r.bus, pre-1)
		c.Post.set(r.bus, post-1)
	}
	c.Busy.wait(r, n.id.String())
	return nil
}
