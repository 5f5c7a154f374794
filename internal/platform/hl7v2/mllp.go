package hl7v2

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MLLPStartBlock is the MLLP start-of-message byte (VT / vertical tab).
	MLLPStartBlock = 0x0B

	// MLLPEndBlock is the MLLP end-of-message byte (FS / file separator).
	MLLPEndBlock = 0x1C

	// MLLPCarriageReturn is the trailing CR after the end block.
	MLLPCarriageReturn = 0x0D

	// mllpMaxMessageSize is the maximum buffer size for a single MLLP message (1 MB).
	mllpMaxMessageSize = 1 << 20

	// mllpReadTimeout is the read deadline applied to each connection.
	mllpReadTimeout = 30 * time.Second
)

// MessageHandler is called for each received HL7v2 message.
// It receives the parsed message and returns an ACK/NAK message to send back.
// Return nil to send no response.
type MessageHandler func(msg *Message) *Message

// MLLPServer listens for HL7v2 messages over MLLP/TCP.
type MLLPServer struct {
	addr     string
	handler  MessageHandler
	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// NewMLLPServer creates a new MLLP server that will listen on the given
// address and dispatch parsed messages to handler.
func NewMLLPServer(addr string, handler MessageHandler, logger zerolog.Logger) *MLLPServer {
	return &MLLPServer{
		addr:    addr,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "mllp").Logger(),
	}
}

// Start begins listening for connections. It is non-blocking: the accept loop
// runs in a background goroutine.
func (s *MLLPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mllp: failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	return nil
}

// Stop closes the listener and every tracked connection, then waits for all
// goroutines to finish.
func (s *MLLPServer) Stop() error {
	close(s.done)

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	return err
}

// Addr returns the listener address string. This is especially useful when the
// server was started with port 0 (OS-assigned port).
func (s *MLLPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *MLLPServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}

		s.trackConn(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			defer conn.Close()
			s.handleConnection(conn)
		}()
	}
}

func (s *MLLPServer) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConnection reads MLLP-framed messages from conn, parses them,
// dispatches to the handler, and writes back any response.
func (s *MLLPServer) handleConnection(conn net.Conn) {
	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)

	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(mllpReadTimeout))

		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)

			if len(buf) > mllpMaxMessageSize {
				s.logger.Warn().Int("bytes", len(buf)).Msg("message exceeds max size, closing connection")
				return
			}

			for {
				msgBytes, rest, found := UnframeMessage(buf)
				if !found {
					break
				}
				buf = rest

				s.processMessage(conn, msgBytes)
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if len(buf) == 0 {
					return
				}
				continue
			}
			return
		}
	}
}

// processMessage parses a single message, calls the handler, and writes
// the response (if any) back to conn.
func (s *MLLPServer) processMessage(conn net.Conn, raw []byte) {
	msg, err := Parse(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("parse failed")
		return
	}

	resp := s.handler(msg)
	if resp == nil {
		return
	}

	framed := FrameMessage([]byte(resp.String()))

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write(framed); err != nil {
		s.logger.Error().Err(err).Str("control_id", msg.ControlID).Msg("write failed")
	}
}

// ---------------------------------------------------------------------------
// MLLP framing helpers
// ---------------------------------------------------------------------------

// FrameMessage wraps raw HL7v2 bytes in MLLP framing:
//
//	<0x0B> + message + <0x1C><0x0D>
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, MLLPStartBlock)
	frame = append(frame, data...)
	frame = append(frame, MLLPEndBlock, MLLPCarriageReturn)
	return frame
}

// UnframeMessage extracts HL7v2 bytes from an MLLP frame. It returns the
// extracted message, any remaining bytes after the frame, and whether a
// complete frame was found.
func UnframeMessage(data []byte) (message []byte, rest []byte, found bool) {
	startIdx := bytes.IndexByte(data, MLLPStartBlock)
	if startIdx == -1 {
		return nil, data, false
	}

	endSeq := []byte{MLLPEndBlock, MLLPCarriageReturn}
	endIdx := bytes.Index(data[startIdx+1:], endSeq)
	if endIdx == -1 {
		return nil, data, false
	}

	endIdx = startIdx + 1 + endIdx

	message = data[startIdx+1 : endIdx]
	rest = data[endIdx+2:]
	found = true
	return
}

// ---------------------------------------------------------------------------
// ACK generation
// ---------------------------------------------------------------------------

// GenerateACK creates an HL7v2 ACK message for the given incoming message.
// ackCode should be "AA" (accept), "AE" (error), or "AR" (reject). text, when
// non-empty, is carried in MSA-3.
//
// The ACK swaps the sending and receiving application/facility from the
// original message and references the original control ID in MSA-2.
func GenerateACK(incoming *Message, ackCode, text string) *Message {
	enc := incoming.Encoding
	if enc.Field == 0 {
		enc = DefaultEncoding
	}

	trigger := ""
	if parts := strings.SplitN(incoming.Type, string(enc.Component), 2); len(parts) == 2 {
		trigger = parts[1]
	}

	now := time.Now().UTC()
	controlID := "ACK" + now.Format("20060102150405.000")

	sep := string(enc.Field)
	msh := strings.Join([]string{
		"MSH",
		enc.Characters(),
		incoming.ReceivingApp,
		incoming.ReceivingFac,
		incoming.SendingApp,
		incoming.SendingFac,
		ToHL7Date(now),
		"",
		"ACK" + string(enc.Component) + trigger,
		controlID,
		"P",
		incoming.Version,
	}, sep)
	msa := strings.Join([]string{"MSA", ackCode, incoming.ControlID, Escape(text, enc)}, sep)
	msa = strings.TrimRight(msa, sep)

	ack, err := ParseString(msh + "\r" + msa)
	if err != nil {
		// Unreachable: the text above always starts with a well-formed MSH.
		return &Message{Type: "ACK"}
	}
	return ack
}

// DefaultHandler returns a MessageHandler that always ACKs with "AA".
func DefaultHandler() MessageHandler {
	return func(msg *Message) *Message {
		return GenerateACK(msg, "AA", "")
	}
}

// ---------------------------------------------------------------------------
// Message serialization
// ---------------------------------------------------------------------------

// String serializes the segment tree back into HL7v2 text with \r segment
// separators, using the message's own delimiters. Components changed with
// Set are written with their current value.
func (m *Message) String() string {
	enc := m.Encoding
	if enc.Field == 0 {
		enc = DefaultEncoding
	}
	segments := make([]string, len(m.Segments))
	for i, seg := range m.Segments {
		segments[i] = seg.serialize(enc)
	}
	return strings.Join(segments, "\r")
}

func (s *Segment) serialize(enc Encoding) string {
	parts := []string{s.Name}
	// MSH-1 is the field separator itself and is written by the join.
	start := 1
	if s.Name == "MSH" {
		start = 2
	}
	for i := start; i < len(s.Fields); i++ {
		parts = append(parts, s.Fields[i].serialize(enc))
	}
	return strings.Join(parts, string(enc.Field))
}

func (f *Field) serialize(enc Encoding) string {
	if len(f.Components) == 0 {
		return f.Value
	}

	values := make([]string, len(f.Components))
	for i, c := range f.Components {
		values[i] = c.Value()
	}
	reps := []string{strings.Join(values, string(enc.Component))}
	for _, rep := range f.Repeats[min(1, len(f.Repeats)):] {
		reps = append(reps, strings.Join(rep, string(enc.Component)))
	}
	return strings.Join(reps, string(enc.Repetition))
}
