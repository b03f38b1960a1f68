// Package control implements the localhost-only control socket: a
// line-oriented TCP protocol with two verbs, "status" and "shutdown".
package control

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

const dialTimeout = 3 * time.Second

// Server listens on a localhost address and answers "status" and
// "shutdown" requests. Any other line closes the connection with no
// reply.
type Server struct {
	addr     string
	log      *log.Logger
	shutdown func()
}

// NewServer returns a Server that calls shutdown when a "shutdown"
// request arrives.
func NewServer(addr string, logger *log.Logger, shutdown func()) *Server {
	return &Server{addr: addr, log: logger, shutdown: shutdown}
}

// Serve listens on s.addr and handles connections until ctx is
// canceled. It returns after the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("control: listen on %s: %w", s.addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Printf("control: accept error: %v", err)
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	verb := strings.TrimSpace(line)

	switch verb {
	case "status":
		fmt.Fprint(conn, "running")
	case "shutdown":
		// No reply: the process may tear down the listener before a
		// write would reach the client, so shutdown is fire-and-forget.
		s.shutdown()
	default:
		// Anything else closes the connection with no reply.
	}
}

// Status dials addr and reports whether the daemon answers "status"
// with "running". Any dial or protocol error is treated as "not
// running".
func Status(addr string) bool {
	resp, err := request(addr, "status")
	return err == nil && resp == "running"
}

// Shutdown asks the daemon at addr to stop. It is a no-op, reporting
// no error, if the daemon is not running. Unlike Status, it does not
// wait for a reply: the server never sends one for "shutdown", so
// send returns as soon as the verb is written.
func Shutdown(addr string) error {
	if !Status(addr) {
		return nil
	}
	return send(addr, "shutdown")
}

// send writes verb to addr and returns without reading a reply.
func send(addr, verb string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(dialTimeout))

	_, err = fmt.Fprintf(conn, "%s\n", verb)
	return err
}

func request(addr, verb string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(dialTimeout))

	if _, err := fmt.Fprintf(conn, "%s\n", verb); err != nil {
		return "", err
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}
