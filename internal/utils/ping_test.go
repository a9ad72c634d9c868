package utils

import (
	"net"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPingService(t *testing.T) {
	server := httptest.NewServer(nil)
	defer server.Close()

	if err := PingService(server.URL, time.Second); err != nil {
		t.Errorf("Expected reachable server, got %v", err)
	}
	if err := PingService("://bad", time.Second); err == nil {
		t.Error("Expected invalid URL error")
	}
}

func TestPingAddressRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	if err := PingAddress(addr, 200*time.Millisecond); err == nil {
		t.Error("Expected closed port to fail")
	}
}
