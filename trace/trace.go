// Package trace writes frequency events and baseband samples of a channel to a file or a UDP
// destination for offline analysis.
package trace

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/ftl/channelizer/sample"
)

const (
	EventsContext   = "events"
	BasebandContext = "baseband"
)

// maxDatagramSize keeps UDP datagrams below the typical ethernet MTU.
const maxDatagramSize = 1400

type Tracer interface {
	Context() string
	Start()
	Trace(context string, format string, args ...any)
	// TraceSamples writes the samples as signed 16-bit little-endian values.
	TraceSamples(context string, samples []float32)
	Stop()
}

type NoTracer struct{}

func (t *NoTracer) Context() string                { return "" }
func (t *NoTracer) Start()                         {}
func (t *NoTracer) Trace(string, string, ...any)   {}
func (t *NoTracer) TraceSamples(string, []float32) {}
func (t *NoTracer) Stop()                          {}

// Parse creates a tracer from a destination of the form file:<filename> or udp:<host:port>.
func Parse(context string, destination string) (Tracer, error) {
	protocol, target, found := strings.Cut(destination, ":")
	if !found {
		return nil, fmt.Errorf("invalid trace destination %q, use file:<filename> or udp:<host:port>", destination)
	}

	switch strings.ToLower(protocol) {
	case "file":
		return NewFileTracer(context, target), nil
	case "udp":
		return NewUDPTracer(context, target)
	default:
		return nil, fmt.Errorf("unknown trace protocol %q", protocol)
	}
}

// writerTracer writes everything of its context to an io.WriteCloser that is opened on Start.
type writerTracer struct {
	context   string
	open      func() (io.WriteCloser, error)
	chunkSize int

	lock sync.Mutex
	out  io.WriteCloser
}

func (t *writerTracer) Context() string {
	return t.context
}

func (t *writerTracer) Start() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out != nil {
		return
	}

	out, err := t.open()
	if err != nil {
		log.Printf("cannot start trace: %v", err)
		return
	}
	t.out = out
}

func (t *writerTracer) Trace(context string, format string, args ...any) {
	if context != t.context {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out == nil {
		return
	}

	fmt.Fprintf(t.out, format, args...)
}

func (t *writerTracer) TraceSamples(context string, samples []float32) {
	if context != t.context {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out == nil {
		return
	}

	data := sample.Signed16LE(samples)
	chunkSize := t.chunkSize
	if chunkSize <= 0 {
		chunkSize = len(data)
	}
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		if _, err := t.out.Write(data[:n]); err != nil {
			log.Printf("cannot write trace: %v", err)
			return
		}
		data = data[n:]
	}
}

func (t *writerTracer) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out == nil {
		return
	}

	t.out.Close()
	t.out = nil
}

type FileTracer struct {
	writerTracer
	filename string
}

func NewFileTracer(context string, filename string) *FileTracer {
	return &FileTracer{
		writerTracer: writerTracer{
			context: context,
			open: func() (io.WriteCloser, error) {
				return os.Create(filename)
			},
		},
		filename: filename,
	}
}

func (t *FileTracer) Filename() string {
	return t.filename
}

type UDPTracer struct {
	writerTracer
	addr *net.UDPAddr
}

func NewUDPTracer(context string, destination string) (*UDPTracer, error) {
	addr, err := net.ResolveUDPAddr("udp", destination)
	if err != nil {
		return nil, fmt.Errorf("cannot parse UDP destination: %w", err)
	}
	return &UDPTracer{
		writerTracer: writerTracer{
			context:   context,
			chunkSize: maxDatagramSize,
			open: func() (io.WriteCloser, error) {
				return net.DialUDP("udp", nil, addr)
			},
		},
		addr: addr,
	}, nil
}

func (t *UDPTracer) Addr() *net.UDPAddr {
	return t.addr
}
