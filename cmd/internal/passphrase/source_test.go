package passphrase

import (
	"bytes"
	"errors"
	"testing"
)

func testSource(env map[string]string, tty bool, typed string, readErr error) (*Source, *int) {
	reads := 0
	s := NewSource("MARKET_PASS", "manager keystore")
	s.lookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.terminal = func() bool { return tty }
	s.read = func() ([]byte, error) {
		reads++
		return []byte(typed), readErr
	}
	s.prompt = &bytes.Buffer{}
	return s, &reads
}

func TestEnvironmentWins(t *testing.T) {
	s, reads := testSource(map[string]string{"MARKET_PASS": "from-env"}, true, "typed", nil)
	got, err := s.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if *reads != 0 {
		t.Fatalf("terminal read %d times", *reads)
	}
}

func TestEmptyEnvironmentRejected(t *testing.T) {
	s, _ := testSource(map[string]string{"MARKET_PASS": "  "}, true, "typed", nil)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected empty env passphrase to be rejected")
	}
}

func TestPromptIsCached(t *testing.T) {
	s, reads := testSource(nil, true, "typed", nil)
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "typed" {
			t.Fatalf("Get() = %q, %v", got, err)
		}
	}
	if *reads != 1 {
		t.Fatalf("expected one prompt, got %d", *reads)
	}
	if !bytes.Contains(s.prompt.(*bytes.Buffer).Bytes(), []byte("manager keystore")) {
		t.Fatalf("prompt does not name the keystore")
	}
}

func TestPromptFailures(t *testing.T) {
	cases := []struct {
		name    string
		tty     bool
		typed   string
		readErr error
	}{
		{"no terminal", false, "", nil},
		{"blank input", true, "   ", nil},
		{"read error", true, "", errors.New("eof")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := testSource(nil, tc.tty, tc.typed, tc.readErr)
			if _, err := s.Get(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
