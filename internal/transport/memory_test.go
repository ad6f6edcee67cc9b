package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

var testService = Service{Name: "BluetoothChat", UUID: "79433a70-ec23-4c09-8c39-70b6584c9e34"}

func TestMemoryDialAccept(t *testing.T) {
	srv := NewMemory("mem-accept-srv")
	cli := NewMemory("mem-accept-cli")

	rv, err := srv.Listen(testService)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer rv.Close()

	accepted := make(chan Socket, 1)
	go func() {
		s, err := rv.Accept()
		if err != nil {
			t.Errorf("Accept: %v", err)
			close(accepted)
			return
		}
		accepted <- s
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := cli.Dial(ctx, srv.Peer(), testService)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer out.Close()

	var in Socket
	select {
	case in = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
	if in == nil {
		t.FailNow()
	}
	defer in.Close()

	if got := in.Peer().Address; got != "mem-accept-cli" {
		t.Errorf("accepted peer = %q, want %q", got, "mem-accept-cli")
	}
	if got := out.Peer().Address; got != "mem-accept-srv" {
		t.Errorf("dialed peer = %q, want %q", got, "mem-accept-srv")
	}

	go out.Write([]byte("hello")) //nolint:errcheck
	buf := make([]byte, 5)
	if _, err := io.ReadFull(in, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("got %q, want %q", buf, "hello")
	}
}

func TestMemoryDialRefused(t *testing.T) {
	cli := NewMemory("mem-refused-cli")
	_, err := cli.Dial(context.Background(), Peer{Address: "mem-nobody"}, testService)
	if !errors.Is(err, ErrRefused) {
		t.Fatalf("err = %v, want ErrRefused", err)
	}
}

func TestMemoryCloseUnblocksAccept(t *testing.T) {
	srv := NewMemory("mem-close-srv")
	rv, err := srv.Listen(testService)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := rv.Accept()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	rv.Close()
	rv.Close() // idempotent

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after Close")
	}

	// The address is free again.
	rv2, err := srv.Listen(testService)
	if err != nil {
		t.Fatalf("relisten: %v", err)
	}
	rv2.Close()
}

func TestMemoryListenTwice(t *testing.T) {
	srv := NewMemory("mem-twice-srv")
	rv, err := srv.Listen(testService)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer rv.Close()
	if _, err := srv.Listen(testService); err == nil {
		t.Fatal("second Listen on the same address should fail")
	}
}

func TestMemoryUnavailable(t *testing.T) {
	m := NewMemory("mem-down")
	m.SetAvailable(false)
	if _, err := m.Listen(testService); !errors.Is(err, ErrAdapterUnavailable) {
		t.Errorf("Listen err = %v, want ErrAdapterUnavailable", err)
	}
	if _, err := m.Dial(context.Background(), Peer{Address: "x"}, testService); !errors.Is(err, ErrAdapterUnavailable) {
		t.Errorf("Dial err = %v, want ErrAdapterUnavailable", err)
	}
	m.SetAvailable(true)
	rv, err := m.Listen(testService)
	if err != nil {
		t.Fatalf("Listen after recovery: %v", err)
	}
	rv.Close()
}

func TestMemoryDiscover(t *testing.T) {
	a := NewMemory("mem-disc-a")
	b := NewMemory("mem-disc-b")
	rv, err := b.Listen(testService)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer rv.Close()

	peers, err := a.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	found := false
	for _, p := range peers {
		if p.Address == "mem-disc-a" {
			t.Error("Discover should not list the caller itself")
		}
		if p.Address == "mem-disc-b" {
			found = true
		}
	}
	if !found {
		t.Errorf("Discover = %v, want mem-disc-b listed", peers)
	}
}

func TestPeerString(t *testing.T) {
	tests := []struct {
		peer Peer
		want string
	}{
		{Peer{Address: "AA:BB"}, "AA:BB"},
		{Peer{Address: "AA:BB", Name: "phone"}, "phone"},
	}
	for _, tt := range tests {
		if got := tt.peer.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.peer, got, tt.want)
		}
	}
}
