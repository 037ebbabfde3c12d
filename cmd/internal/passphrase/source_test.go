package passphrase

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("ESCROW_TEST_PASS", "hunter2")
	src := NewSource("ESCROW_TEST_PASS", "maker")
	src.isTerminal = func(int) bool { t.Fatal("terminal must not be consulted"); return false }

	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("ESCROW_TEST_PASS", "   ")
	if _, err := NewSource("ESCROW_TEST_PASS", "maker").Get(); err == nil {
		t.Fatal("expected error for blank passphrase")
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	calls := 0
	src := NewSource("", "taker")
	src.prompt = io.Discard
	src.isTerminal = func(int) bool { return true }
	src.readPassword = func(int) ([]byte, error) {
		calls++
		return []byte("s3cret"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil || got != "s3cret" {
			t.Fatalf("unexpected result %q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one prompt, got %d", calls)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("ESCROW_TEST_UNSET_PASS", "taker")
	src.isTerminal = func(int) bool { return false }
	_, err := src.Get()
	if err == nil || !strings.Contains(err.Error(), "ESCROW_TEST_UNSET_PASS") {
		t.Fatalf("expected hint naming the variable, got %v", err)
	}
}

func TestSourcePropagatesReadError(t *testing.T) {
	src := NewSource("", "maker")
	src.prompt = io.Discard
	src.isTerminal = func(int) bool { return true }
	src.readPassword = func(int) ([]byte, error) { return nil, errors.New("tty closed") }
	if _, err := src.Get(); err == nil || !strings.Contains(err.Error(), "tty closed") {
		t.Fatalf("expected read error, got %v", err)
	}
}
