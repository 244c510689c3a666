package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestPipe_SendReceive(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	msg := []byte{0x00, 0x03, 0x42, 0x01, 0x00}
	if err := pipe.Controller().Send(msg); err != nil {
		t.Fatal(err)
	}

	got, err := pipe.Accessory().Receive(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("received %x, want %x", got, msg)
	}
}

func TestPipe_BothDirections(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	if err := pipe.Accessory().Send([]byte("resp")); err != nil {
		t.Fatal(err)
	}
	got, err := pipe.Controller().Receive(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "resp" {
		t.Errorf("received %q", got)
	}
}

func TestPipe_ReceiveTimeout(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	start := time.Now()
	_, err := pipe.Controller().Receive(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Errorf("returned before timeout")
	}

	// Timeout is recoverable: a later message still arrives.
	if err := pipe.Accessory().Send([]byte("late")); err != nil {
		t.Fatal(err)
	}
	got, err := pipe.Controller().Receive(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "late" {
		t.Errorf("received %q", got)
	}
}

func TestPipe_MessageBoundariesPreserved(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	first := []byte("first")
	second := []byte("second-message")
	if err := pipe.Controller().Send(first); err != nil {
		t.Fatal(err)
	}
	if err := pipe.Controller().Send(second); err != nil {
		t.Fatal(err)
	}

	got1, err := pipe.Accessory().Receive(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	got2, err := pipe.Accessory().Receive(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got1, first) || !bytes.Equal(got2, second) {
		t.Errorf("messages merged or reordered: %q, %q", got1, got2)
	}
}

func TestPipe_ClosedEndpoint(t *testing.T) {
	pipe := NewPipe()
	pipe.Close()

	if err := pipe.Controller().Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close: err = %v", err)
	}
	if _, err := pipe.Controller().Receive(time.Millisecond); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after close: err = %v", err)
	}
	if err := pipe.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("double Close: err = %v", err)
	}
}
