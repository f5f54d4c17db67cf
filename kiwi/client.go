package kiwi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ftl/channelizer/cli"
)

/*

Resources:
- https://github.com/strickyak/go-kiwisdr-client/blob/master/client/client.go
- https://github.com/hcab14/kiwiclient/blob/master/kiwi/client.py

*/

const (
	defaultHostname = "localhost"
	defaultPort     = 8073

	keepaliveInterval = 5 * time.Second
	iqHeaderSize      = 17
)

type kiwiTag string

const (
	msgTag kiwiTag = "MSG"
	sndTag kiwiTag = "SND"
)

type kiwiMode string

const (
	iqMode kiwiMode = "iq"
)

type kiwiConfiguration map[string]string

const (
	tooBusyMessage     = "too_busy"
	badPasswordMessage = "badp"
	downMessage        = "down"
)

var (
	ErrTooBusy     = errors.New("kiwi too busy")
	ErrBadPassword = errors.New("bad password")
	ErrDown        = errors.New("kiwi down")
)

type clientConn interface {
	Close() error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
}

// iqFrame is the content of one SND message in IQ mode.
type iqFrame struct {
	Sequence uint32
	RSSI     float32
	Samples  []float32
}

type clientHandler interface {
	Connected(sampleRate int)
	IQData(sampleRate int, frame iqFrame)
	Disconnected(err error)
}

// Client receives the IQ stream of one KiwiSDR channel over a websocket.
type Client struct {
	host *net.TCPAddr

	configuration kiwiConfiguration
	audioRate     int
	connected     bool
	keepalive     bool

	handler clientHandler

	out       chan string
	close     chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(host string, keepalive bool, handler clientHandler) (*Client, error) {
	tcpHost, err := cli.ParseTCPAddrArg(host, defaultHostname, defaultPort)
	if err != nil {
		return nil, fmt.Errorf("invalid Kiwi host: %w", err)
	}
	if tcpHost.Port == 0 {
		tcpHost.Port = defaultPort
	}

	return &Client{
		host:          tcpHost,
		configuration: make(kiwiConfiguration),
		keepalive:     keepalive,
		handler:       handler,
		out:           make(chan string, 10),
		close:         make(chan struct{}),
		closed:        make(chan struct{}),
	}, nil
}

func (c *Client) dial() (clientConn, error) {
	hostURL := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(c.host.IP.String(), strconv.Itoa(c.host.Port)),
		Path:   fmt.Sprintf("/%d/SND", nextClientNumber()),
	}

	conn, _, err := websocket.DefaultDialer.Dial(hostURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("cannot dial KiwiSDR websocket: %w", err)
	}

	return conn, nil
}

// start the read and write loops on the given connection and send the IQ setup for the given
// center frequency and bandwidth.
func (c *Client) start(conn clientConn, username string, password string, centerFrequency int64, bandwidth int) {
	go c.readLoop(conn)
	go c.writeLoop(conn)

	c.send("SET auth t=kiwi p=%s", url.QueryEscape(password))
	c.send("SET ident_user=%s", url.QueryEscape(username))
	c.send("SET AR OK in=12000 out=48000")
	c.send("SET squelch=0 max=0")
	c.send("SET lms_autonotch=0")
	c.send("SET agc=0 hang=0 thresh=-100 slope=6 decay=1000 manGain=50")
	c.send("SET compression=0")
	c.tune(centerFrequency, bandwidth)
}

func (c *Client) tune(centerFrequency int64, bandwidth int) {
	c.send("SET mod=%s low_cut=%d high_cut=%d freq=%.3f", iqMode, -bandwidth/2, bandwidth/2, float64(centerFrequency)/1000.0)
}

func (c *Client) readLoop(conn clientConn) {
	for {
		select {
		case <-c.close:
			return
		default:
		}

		msgType, msgBytes, err := conn.ReadMessage()
		if err != nil {
			c.disconnect(fmt.Errorf("cannot read next message from websocket: %w", err))
			return
		}
		if msgType != websocket.BinaryMessage {
			log.Printf("received wrong message type from websocket: %d", msgType)
			continue
		}

		tag, payload, err := decodeKiwiMessage(msgBytes)
		if err != nil {
			log.Print(err)
			continue
		}

		switch tag {
		case msgTag:
			err = c.decodeConfigurationMessage(payload)
			if err == nil && !c.connected && c.audioRate != 0 {
				c.connected = true
				c.handler.Connected(c.audioRate)
			}
		case sndTag:
			if c.audioRate == 0 {
				err = fmt.Errorf("received IQ data with unknown audio rate")
				break
			}
			var frame iqFrame
			frame, err = decodeIQMessage(payload)
			if err == nil {
				c.handler.IQData(c.audioRate, frame)
			}
		default:
			log.Printf("received message with unknown tag: %s %d bytes", tag, len(payload))
		}

		if errors.Is(err, ErrTooBusy) || errors.Is(err, ErrBadPassword) || errors.Is(err, ErrDown) {
			c.disconnect(err)
			return
		}
		if err != nil {
			log.Print(err)
		}
	}
}

// shutdown returns true only for the first call.
func (c *Client) shutdown() bool {
	result := false
	c.closeOnce.Do(func() {
		close(c.close)
		result = true
	})
	return result
}

// disconnect reports the given error unless the client was closed deliberately.
func (c *Client) disconnect(err error) {
	if c.shutdown() {
		c.handler.Disconnected(err)
	}
}

func decodeKiwiMessage(bytes []byte) (tag kiwiTag, payload []byte, err error) {
	if len(bytes) < 3 {
		return "", nil, fmt.Errorf("message too short: %v", bytes)
	}

	tag = kiwiTag(bytes[0:3])
	payload = bytes[3:]
	return
}

func (c *Client) decodeConfigurationMessage(payload []byte) error {
	for _, part := range strings.Split(string(payload), " ") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			c.configuration[part] = ""
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == tooBusyMessage && value == "1":
			return ErrTooBusy
		case key == badPasswordMessage && value == "1":
			return ErrBadPassword
		case key == downMessage && value == "1":
			return ErrDown
		}

		var err error
		switch {
		case key == "audio_rate":
			c.audioRate, err = strconv.Atoi(value)
		case strings.HasPrefix(key, "load_"):
			value, err = url.QueryUnescape(value)
		}
		if err != nil {
			return fmt.Errorf("invalid configuration value %s: %w", key, err)
		}

		c.configuration[key] = value
	}
	return nil
}

// decodeIQMessage decodes the header and the samples of a SND message. Every frame gets its
// own sample slice because the samples are handed on to the channel sources.
func decodeIQMessage(payload []byte) (iqFrame, error) {
	if len(payload) < iqHeaderSize {
		return iqFrame{}, fmt.Errorf("IQ message too short: %d bytes", len(payload))
	}

	// payload[0] holds the flags, payload[7:17] GPS information that is ignored
	sequence := binary.LittleEndian.Uint32(payload[1:5])
	smeter := binary.BigEndian.Uint16(payload[5:7])

	iqBytes := payload[iqHeaderSize:]
	if len(iqBytes)%4 != 0 {
		return iqFrame{}, fmt.Errorf("IQ message contains incomplete samples: %d bytes", len(iqBytes))
	}

	return iqFrame{
		Sequence: sequence,
		RSSI:     0.1*float32(smeter) - 127,
		Samples:  decodeIQBytes(iqBytes),
	}, nil
}

func decodeIQBytes(iqBytes []byte) []float32 {
	result := make([]float32, len(iqBytes)/2)
	for i := range result {
		rawSample := binary.BigEndian.Uint16(iqBytes[2*i : 2*(i+1)])
		result[i] = float32(int16(rawSample)) / float32(math.MaxInt16)
	}
	return result
}

func (c *Client) writeLoop(conn clientConn) {
	defer close(c.closed)
	defer conn.Close()

	keepaliveMessage := []byte("SET keepalive")
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		var err error
		select {
		case <-c.close:
			return
		case <-keepalive.C:
			if c.keepalive {
				err = conn.WriteMessage(websocket.TextMessage, keepaliveMessage)
			}
		case message := <-c.out:
			err = conn.WriteMessage(websocket.TextMessage, []byte(message))
		}
		if err != nil {
			c.disconnect(fmt.Errorf("cannot write message to websocket: %w", err))
			return
		}
	}
}

func (c *Client) send(format string, args ...any) {
	select {
	case c.out <- fmt.Sprintf(format, args...):
	case <-c.close:
	}
}

// Close the connection and wait until it is shut down.
func (c *Client) Close() {
	c.shutdown()
	<-c.closed
}

func nextClientNumber() int64 {
	return time.Now().Unix()
}
