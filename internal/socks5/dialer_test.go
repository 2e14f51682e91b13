package socks5

import (
	"context"
	"errors"
	"net"
	"testing"
)

type recordingDialer struct {
	dialed []string
	err    error
}

func (d *recordingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dialed = append(d.dialed, address)
	if d.err != nil {
		return nil, d.err
	}
	client, _ := net.Pipe()
	return client, nil
}

func TestDialResolved_IPLiteralSkipsResolver(t *testing.T) {
	dialer := &recordingDialer{}

	conn, err := dialResolved(context.Background(), dialer, net.DefaultResolver, "192.0.2.10", 443)
	if err != nil {
		t.Fatalf("dialResolved error = %v", err)
	}
	defer conn.Close()

	if len(dialer.dialed) != 1 || dialer.dialed[0] != "192.0.2.10:443" {
		t.Errorf("dialed = %v, want single call to 192.0.2.10:443", dialer.dialed)
	}
}

func TestDialResolved_IPv6Literal(t *testing.T) {
	dialer := &recordingDialer{}

	conn, err := dialResolved(context.Background(), dialer, net.DefaultResolver, "::1", 22)
	if err != nil {
		t.Fatalf("dialResolved error = %v", err)
	}
	defer conn.Close()

	if len(dialer.dialed) != 1 || dialer.dialed[0] != "[::1]:22" {
		t.Errorf("dialed = %v, want single call to [::1]:22", dialer.dialed)
	}
}

func TestDialResolved_DialFailurePropagates(t *testing.T) {
	wantErr := errors.New("connection refused")
	dialer := &recordingDialer{err: wantErr}

	_, err := dialResolved(context.Background(), dialer, net.DefaultResolver, "192.0.2.10", 443)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
