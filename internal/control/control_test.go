package control

import (
	"context"
	"io"
	"log"
	"net"
	"testing"
	"time"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestStatusBeforeServerStarts(t *testing.T) {
	if Status(freeAddr(t)) {
		t.Error("Status should be false when nothing is listening")
	}
}

func TestStatusAndShutdown(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCalled := make(chan struct{}, 1)
	srv := NewServer(addr, discardLogger(), func() {
		shutdownCalled <- struct{}{}
		cancel()
	})

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	waitForListener(t, addr)

	if !Status(addr) {
		t.Error("Status should be true once the server is serving")
	}

	if err := Shutdown(addr); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	select {
	case <-shutdownCalled:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was never invoked")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned an error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestUnknownVerbClosesWithNoReply(t *testing.T) {
	addr := freeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer(addr, discardLogger(), func() {})
	go srv.Serve(ctx)
	waitForListener(t, addr)

	resp, err := request(addr, "nonsense")
	if err == nil {
		t.Errorf("expected the connection to close with no reply, got %q", resp)
	}
}

func TestShutdownIsNoOpWhenNotRunning(t *testing.T) {
	if err := Shutdown(freeAddr(t)); err != nil {
		t.Errorf("Shutdown against a non-running daemon should not error, got: %v", err)
	}
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("nothing listening on %s after 1s", addr)
}
