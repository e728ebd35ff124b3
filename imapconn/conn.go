// Package imapconn owns the network connection: it dials (or wraps) a
// net.Conn, drives the wire.Decoder/Encoder pair, and runs the
// single-threaded response pump that turns raw lines into respparser
// responses and dispatches them into a task.Scheduler. This is the
// "reader loop + command writer" role a single-purpose client package
// played before being generalized to the rest of this module's domain.
package imapconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pelikan-mail/imapcore/respparser"
	"github.com/pelikan-mail/imapcore/task"
	"github.com/pelikan-mail/imapcore/wire"
)

// UntaggedHandler receives one parsed untagged response as it arrives on
// the read loop. Handlers run synchronously on the read-loop goroutine and
// must not block, matching the cooperative single-threaded model: a slow
// handler stalls all further reads from the connection.
type UntaggedHandler func(resp *respparser.Response)

// Conn is one IMAP connection: a socket, the registered response handlers,
// and the task scheduler correlating commands to their tagged completions.
type Conn struct {
	nc  net.Conn
	dec *wire.Decoder
	enc *wire.Encoder

	scheduler *task.Scheduler
	logger    *zap.Logger

	mu       sync.Mutex
	handlers []UntaggedHandler

	readErr error
	closed  chan struct{}
}

// Dial opens a TCP connection to addr, upgrades it to TLS when tlsConfig is
// non-nil, and wraps it.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, logger *zap.Logger) (*Conn, error) {
	d := &net.Dialer{}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("imapconn: dial %s: %w", addr, err)
	}
	if tlsConfig != nil {
		nc = tls.Client(nc, tlsConfig)
	}
	return New(nc, logger), nil
}

// New wraps an already-connected net.Conn, letting callers supply their own
// dialer (e.g. for STARTTLS, where the plaintext socket is upgraded in place).
func New(nc net.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	br := bufio.NewReaderSize(nc, 8192)
	c := &Conn{
		nc:        nc,
		dec:       wire.NewDecoder(br),
		enc:       wire.NewEncoder(nc),
		scheduler: task.NewScheduler(),
		logger:    logger,
		closed:    make(chan struct{}),
	}
	go c.readLoop(br)
	return c
}

// Scheduler returns the connection's task scheduler, so callers can enqueue
// tasks (SELECT, FETCH, ...) and have their tags correlated to responses.
func (c *Conn) Scheduler() *task.Scheduler { return c.scheduler }

// OnUntagged registers a handler invoked for every untagged response. Used
// by KeepMailboxOpen/syncengine to observe EXISTS/EXPUNGE/FETCH/VANISHED
// without the connection itself knowing about mailbox semantics.
func (c *Conn) OnUntagged(h UntaggedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// SendCommand writes one tagged command line, e.g. "a1.2 SELECT INBOX".
func (c *Conn) SendCommand(tag, line string) error {
	c.enc.Tag(tag).SP().RawString(line).CRLF()
	return c.enc.Flush()
}

// Close shuts down the socket, unblocking the read loop.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// Done is closed once the read loop has exited (socket closed or fatal
// decode error), at which point the scheduler is aborted.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Err returns the error that ended the read loop, if any.
func (c *Conn) Err() error { return c.readErr }

// readLoop is the single-threaded response pump: it reads one logical IMAP
// line at a time (splicing in literal payloads where {n} appears), parses
// it, and either dispatches it to the scheduler (tagged) or to registered
// handlers (untagged).
func (c *Conn) readLoop(br *bufio.Reader) {
	defer close(c.closed)
	for {
		line, err := c.readLogicalLine(br)
		if err != nil {
			c.readErr = err
			c.scheduler.Abort(fmt.Errorf("imapconn: connection lost: %w", err))
			return
		}

		tag, rest := splitTag(line)
		resp, perr := respparser.Parse(tag, rest)
		if perr != nil {
			c.logger.Warn("malformed response", zap.String("line", line), zap.Error(perr))
			continue
		}

		if tag != "" && tag != "*" && tag != "+" {
			// Tagged completion: the issuing task observes it via its own
			// Run method reading off a channel fed by this dispatch; here
			// we only need to know the task exists so protocol drift (a
			// tag nobody is waiting for) gets logged instead of silently
			// dropped.
			if _, ok := c.scheduler.Lookup(tag); !ok {
				c.logger.Warn("response for unknown tag", zap.String("tag", tag))
			}
			c.dispatch(resp)
			continue
		}

		c.dispatch(resp)
	}
}

func (c *Conn) dispatch(resp *respparser.Response) {
	c.mu.Lock()
	handlers := append([]UntaggedHandler(nil), c.handlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(resp)
	}
}

// readLogicalLine reads bytes up to CRLF, then, if the line ends with a
// literal marker ({n} or {n+}), reads exactly n more bytes and appends them
// right after the marker (the CRLF that ended the marker line is not kept),
// repeating until no literal marker
// remains. This is what lets respparser.Parse receive one self-contained
// string per call even though the wire interleaves literals mid-line.
func (c *Conn) readLogicalLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := readCRLFLine(br)
		if err != nil {
			return "", err
		}
		sb.WriteString(chunk)

		n, ok := trailingLiteralSize(chunk)
		if !ok {
			return sb.String(), nil
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(br, payload); err != nil {
			return "", fmt.Errorf("imapconn: reading %d-byte literal: %w", n, err)
		}
		sb.Write(payload)
	}
}

func readCRLFLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		part, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", err
		}
		buf = append(buf, part...)
		if !isPrefix {
			return string(buf), nil
		}
	}
}

// trailingLiteralSize reports the literal octet count if line ends with a
// {n} or {n+} marker, per RFC 3501 §4.3.
func trailingLiteralSize(line string) (int64, bool) {
	if !strings.HasSuffix(line, "}") {
		return 0, false
	}
	open := strings.LastIndexByte(line, '{')
	if open < 0 {
		return 0, false
	}
	spec := line[open+1 : len(line)-1]
	spec = strings.TrimSuffix(spec, "+")
	n, err := strconv.ParseInt(spec, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func splitTag(line string) (tag, rest string) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}

// SetDeadline proxies to the underlying connection, letting callers enforce
// NOOP/IDLE keepalive timeouts from config.Sync.NoopPeriod.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }
