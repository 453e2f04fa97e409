package ipc

import (
	"bufio"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/whuanle/easytouch/internal/envelope"
)

// Handler runs one decoded request and returns the envelope sent back.
type Handler func(req *Request) envelope.Transport

var peerUIDMatchesCurrentUserFn = peerUIDMatchesCurrentUser

const (
	// readTimeout bounds how long a connected client may take to send its line.
	readTimeout = 30 * time.Second
	// writeTimeout bounds how long writing the response may take.
	writeTimeout = 10 * time.Second
	// drainWindow is how long a closing server keeps accepting queued
	// connections to refuse them.
	drainWindow = 50 * time.Millisecond
	// refuseReadTimeout bounds reading the request of a refused connection.
	refuseReadTimeout = time.Second
)

// deadliner is implemented by listeners whose Accept can be interrupted.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Server owns the daemon's listening channel. Connections are handed out one
// at a time through Conns; the caller serves each with Serve before taking
// the next, which keeps dispatch strictly sequential.
type Server struct {
	network  string
	address  string
	token    string
	listener net.Listener
	socket   os.FileInfo
	conns    chan net.Conn
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// Listen binds the daemon channel. For the tcp network the bound address is
// an ephemeral loopback port; read it back with Address.
func Listen(network, address, token string) (*Server, error) {
	ln, bound, err := listen(network, address)
	if err != nil {
		return nil, err
	}

	s := &Server{
		network:  network,
		address:  bound,
		token:    token,
		listener: ln,
		conns:    make(chan net.Conn),
		done:     make(chan struct{}),
	}
	if network == NetworkUnix {
		if ul, ok := ln.(*net.UnixListener); ok {
			ul.SetUnlinkOnClose(false)
		}
		s.socket, _ = os.Stat(bound)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return s, nil
}

// Network returns the descriptor network name.
func (s *Server) Network() string { return s.network }

// Address returns the channel identifier clients dial.
func (s *Server) Address() string { return s.address }

// Conns delivers accepted connections in arrival order. It is closed when the
// listener stops.
func (s *Server) Conns() <-chan net.Conn { return s.conns }

// Close stops accepting. Connections already queued are answered with
// ErrStopping, which clients report as unreachable. The socket file is
// removed only while it is still this server's, so a successor daemon bound
// to the same path keeps its socket.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		dl, interruptible := s.listener.(deadliner)
		if interruptible {
			_ = dl.SetDeadline(time.Now())
		} else {
			err = s.listener.Close()
		}
		close(s.done)
		s.wg.Wait()
		if interruptible {
			err = s.listener.Close()
		}
		s.removeSocket()
	})
	return err
}

func (s *Server) removeSocket() {
	if s.socket == nil {
		return
	}
	if cur, err := os.Stat(s.address); err == nil && os.SameFile(cur, s.socket) {
		_ = os.Remove(s.address)
	}
}

func (s *Server) acceptLoop() {
	defer close(s.conns)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				s.drain()
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient accept failure (fd exhaustion, aborted handshake).
			time.Sleep(10 * time.Millisecond)
			continue
		}

		select {
		case s.conns <- conn:
		case <-s.done:
			refuse(conn)
			s.drain()
			return
		}
	}
}

// drain refuses connections that were queued on the listener when the
// server started closing.
func (s *Server) drain() {
	dl, ok := s.listener.(deadliner)
	if !ok {
		return
	}
	if err := dl.SetDeadline(time.Now().Add(drainWindow)); err != nil {
		return
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		refuse(conn)
	}
}

// refuse answers a connection the daemon will never dispatch. The request is
// read first so the reply is not lost to a reset.
func refuse(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(refuseReadTimeout))
	_, _ = readLine(bufio.NewReader(conn), MaxRequestBytes)
	reply(conn, envelope.TransportError(ErrStopping))
}

// Serve runs exactly one request/response exchange on conn and closes it.
// Malformed input is answered with a failed Transport; the handler is not
// called.
func (s *Server) Serve(conn net.Conn, handler Handler) {
	defer conn.Close()

	if s.network == NetworkUnix {
		ok, err := peerUIDMatchesCurrentUserFn(conn)
		if err != nil {
			reply(conn, envelope.TransportErrorf("peer uid check failed"))
			return
		}
		if !ok {
			reply(conn, envelope.TransportErrorf("peer uid mismatch"))
			return
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := readLine(bufio.NewReader(conn), MaxRequestBytes)
	if err != nil {
		reply(conn, envelope.TransportErrorf("invalid request: %v", err))
		return
	}
	req, err := decodeRequest(line)
	if err != nil {
		reply(conn, envelope.TransportErrorf("invalid request: %v", err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if s.network == NetworkTCP && req.Token != s.token {
		reply(conn, envelope.TransportErrorf("token mismatch"))
		return
	}

	reply(conn, handler(req))
}

func reply(conn net.Conn, resp envelope.Transport) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	writeLine(conn, resp) //nolint: errcheck
}
