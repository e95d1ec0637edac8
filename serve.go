package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Jon-Bright/mx5clk/clk"
	"github.com/Jon-Bright/mx5clk/mx5"
	"github.com/Jon-Bright/mx5clk/regio"
	"github.com/pkg/errors"
)

var chipName = flag.String("chip", "auto", "The SoC to drive: one of auto, mx51, mx53")
var backend = flag.String("backend", "mem", "How to reach the clock registers: one of mem (/dev/mem), serial (register bridge), sim (dry run)")
var serialDev = flag.String("serialdev", "/dev/ttyUSB0", "The serial device of the register bridge, for -backend serial")
var serialBaud = flag.Int("baud", 115200, "The baud rate of the register bridge, for -backend serial")
var port = flag.Int("port", 24601, "The port that the server should listen to")
var timeout = flag.Duration("timeout", clk.DefaultTimeout, "How long to wait for a PLL to lock or a divider to settle")
var oscRate = flag.Uint64("osc", 0, "The osc crystal rate in Hz, 0 for the board's default")
var ckihRate = flag.Uint64("ckih", 0, "The ckih rate in Hz, 0 for the board's default")
var ckih2Rate = flag.Uint64("ckih2", 0, "The ckih2 rate in Hz, 0 for the board's default")
var ckilRate = flag.Uint64("ckil", 0, "The ckil rate in Hz, 0 for the board's default")

type Server struct {
	chip *mx5.Chip
	l    net.Listener
	// Registry calls are each atomic, but a PARENT check followed by the
	// reparent, or a rate change under a concurrent reparent, is not.
	mu sync.Mutex
}

func NewServer(port int, chip *mx5.Chip) (*Server, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	log.Printf("Listening on port %d", port)
	return &Server{chip: chip, l: l}, nil
}

func (s *Server) lookup(name string) (clk.Handle, error) {
	id, err := clk.ParseID(name)
	if err != nil {
		return clk.NoClock, err
	}
	h, ok := s.chip.Registry.Lookup(id)
	if !ok {
		return clk.NoClock, fmt.Errorf("no clock %s", id)
	}
	return h, nil
}

func (s *Server) parseClockRate(parms string) (clk.Handle, uint64, error) {
	t := strings.Fields(parms)
	if len(t) != 2 {
		return clk.NoClock, 0, fmt.Errorf("want '<clock> <hz>', got '%s'", parms)
	}
	rate, err := strconv.ParseUint(t[1], 10, 64)
	if err != nil {
		return clk.NoClock, 0, fmt.Errorf("error parsing rate: %v", err)
	}
	h, err := s.lookup(t[0])
	if err != nil {
		return clk.NoClock, 0, err
	}
	return h, rate, nil
}

func (s *Server) name(h clk.Handle) string {
	if h == clk.NoClock {
		return "-"
	}
	return s.chip.Registry.ID(h).String()
}

// setParent refuses anything the mux can't select, so a mistyped parent is
// an error reply instead of a topology fault.
func (s *Server) setParent(h, p clk.Handle) error {
	r := s.chip.Registry
	cs := r.Candidates(h)
	if cs == nil {
		return errors.Wrapf(clk.ErrNotSupported, "set parent of %s", s.name(h))
	}
	if _, ok := clk.MuxCode(p, cs); !ok {
		var legal []string
		for _, c := range cs {
			if c != clk.NoClock {
				legal = append(legal, s.name(c))
			}
		}
		return fmt.Errorf("%s is not a legal parent of %s, want one of %s", s.name(p), s.name(h), strings.Join(legal, " "))
	}
	return r.SetParent(h, p)
}

// exec runs one command. Queries write their own reply; a nil error with
// nothing written is answered with OK.
func (s *Server) exec(cmd, parms string, w *bufio.Writer) (bool, error) {
	r := s.chip.Registry
	switch cmd {
	case "RATE":
		h, err := s.lookup(parms)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "%d\n", r.Rate(h))
		return true, nil
	case "ROUND", "SET_RATE":
		h, rate, err := s.parseClockRate(parms)
		if err != nil {
			return false, err
		}
		if cmd == "ROUND" {
			got, err := r.RoundRate(h, rate)
			if err != nil {
				return false, err
			}
			fmt.Fprintf(w, "%d\n", got)
			return true, nil
		}
		if h == s.chip.Clocks.CPU {
			// The ARM clock only runs at working points.
			return false, s.chip.Switch.SetRate(rate)
		}
		return false, r.SetRate(h, rate)
	case "PARENT":
		t := strings.Fields(parms)
		if len(t) < 1 || len(t) > 2 {
			return false, fmt.Errorf("want '<clock> [<parent>]', got '%s'", parms)
		}
		h, err := s.lookup(t[0])
		if err != nil {
			return false, err
		}
		if len(t) == 1 {
			fmt.Fprintf(w, "%s\n", s.name(r.Parent(h)))
			return true, nil
		}
		p, err := s.lookup(t[1])
		if err != nil {
			return false, err
		}
		return false, s.setParent(h, p)
	case "ENABLE":
		h, err := s.lookup(parms)
		if err != nil {
			return false, err
		}
		r.Enable(h)
		return false, nil
	case "DISABLE":
		h, err := s.lookup(parms)
		if err != nil {
			return false, err
		}
		if r.EnableCount(h) == 0 {
			return false, fmt.Errorf("%s is not enabled", s.name(h))
		}
		r.Disable(h)
		return false, nil
	case "WP":
		sw := s.chip.Switch
		if parms != "" {
			n, err := strconv.Atoi(parms)
			if err != nil {
				return false, fmt.Errorf("error parsing working point: %v", err)
			}
			return false, sw.SetWorkingPoint(n)
		}
		cur, _ := sw.Current()
		for i, wp := range sw.Table() {
			mark := ""
			if i == cur {
				mark = " *"
			}
			fmt.Fprintf(w, "%d %d %d %d %d%s\n", i, wp.CPURate, wp.PLLRate, wp.CPUPodf, wp.CPUVoltage, mark)
		}
		w.WriteString("OK\n")
		return true, nil
	case "DUMP":
		// Walk holds the registry lock, so names are resolved afterwards.
		var infos []clk.Info
		r.Walk(func(h clk.Handle, info clk.Info) {
			infos = append(infos, info)
		})
		for _, info := range infos {
			fmt.Fprintf(w, "%s %s %d %s %d\n", info.ID, info.Kind, info.Rate, s.name(info.Parent), info.EnableCount)
		}
		w.WriteString("OK\n")
		return true, nil
	case "BUS":
		high, med := r.BusUsers()
		fmt.Fprintf(w, "%d %d\n", high, med)
		return true, nil
	}
	return false, fmt.Errorf("unknown command: %s", cmd)
}

func (s *Server) handleConnection(c net.Conn) {
	log.Printf("Handling connection from %v", c.RemoteAddr())
	defer c.Close()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		l, err := r.ReadString('\n')
		if err == io.EOF {
			log.Printf("EOF for connection %v", c.RemoteAddr())
			return
		}
		if err != nil {
			log.Printf("Error reading string for connection %v: %v", c.RemoteAddr(), err)
			return
		}
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		log.Printf("Got line '%s'", l)
		t := strings.SplitN(l, " ", 2)
		cmd := strings.ToUpper(t[0])
		parms := ""
		if len(t) > 1 {
			parms = strings.TrimSpace(t[1])
		}
		if cmd == "QUIT" {
			return
		}
		s.mu.Lock()
		replied, err := s.exec(cmd, parms, w)
		s.mu.Unlock()
		if err != nil {
			es := fmt.Sprintf("%s failed: %v", cmd, err)
			log.Print(es)
			w.WriteString("ERR: " + es + "\n")
		} else if !replied {
			w.WriteString("OK\n")
		}
		err = w.Flush()
		if err != nil {
			log.Printf("error writing reply: %v", err)
			return
		}
	}
}

func (s *Server) handleConnections() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

func openBus(v *mx5.Variant) (regio.Bus, error) {
	switch *backend {
	case "mem":
		return mx5.MapWindows(v)
	case "serial":
		return regio.OpenSerialBridge(*serialDev, *serialBaud)
	case "sim":
		return mx5.NewSim(v), nil
	}
	return nil, fmt.Errorf("unrecognized backend: %s", *backend)
}

func boardFor(v *mx5.Variant) mx5.Board {
	b := mx5.Babbage
	if v == &mx5.MX53 {
		b = mx5.QSB
	}
	for _, o := range []struct {
		flag uint64
		rate *uint64
	}{
		{*oscRate, &b.Osc},
		{*ckihRate, &b.Ckih},
		{*ckih2Rate, &b.Ckih2},
		{*ckilRate, &b.Ckil},
	} {
		if o.flag != 0 {
			*o.rate = o.flag
		}
	}
	return b
}

func main() {
	flag.Parse()
	var v *mx5.Variant
	var err error
	if *chipName == "auto" {
		v, err = mx5.DetectVariant()
	} else {
		v, err = mx5.VariantByName(*chipName)
	}
	if err != nil {
		log.Fatalf("Failed picking chip: %v", err)
	}
	bus, err := openBus(v)
	if err != nil {
		log.Fatalf("Failed opening %s register backend: %v", *backend, err)
	}
	board := boardFor(v)
	board.Regulator, err = initRegulator()
	if err != nil {
		log.Fatalf("Failed setting up regulator: %v", err)
	}
	chip, err := mx5.Init(bus, v, board, clk.Config{Timeout: *timeout, Now: time.Now})
	if err != nil {
		log.Fatalf("Failed bringing up clocks: %v", err)
	}

	s, err := NewServer(*port, chip)
	if err != nil {
		log.Fatalf("Failed creating server: %v", err)
	}
	s.handleConnections()
}
