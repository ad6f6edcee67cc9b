package logging

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(3)
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	for i, prefix := range []string{"[ERR]", "[WRN]", "[INF]", "[VRB]", "[DBG]"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d %q missing prefix %q", i, lines[i], prefix)
		}
	}
}

func TestLoggerQuiet(t *testing.T) {
	var buf bytes.Buffer
	l := New(0)
	l.SetOutput(&buf)

	l.Warn("hidden")
	l.Info("hidden")
	l.Debug("hidden")
	l.Error("shown")

	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("expected 1 line in quiet mode, got %d:\n%s", got, buf.String())
	}
}

func TestLoggerNamed(t *testing.T) {
	var buf bytes.Buffer
	l := New(1)
	l.SetOutput(&buf)

	l.Named("chat").Named("listener").Info("bound %s", "hci0")

	want := "[INF] chat/listener: bound hci0\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing") // must not panic or print
	if l.Level() != LevelQuiet {
		t.Errorf("Level = %d, want quiet", l.Level())
	}
}

func TestTimestampsReachChildren(t *testing.T) {
	var buf bytes.Buffer
	parent := New(1)
	parent.SetOutput(&buf)
	child := parent.Named("session")

	parent.SetTimestamps(true)
	child.Info("up")
	stamped := regexp.MustCompile(`^\d\d:\d\d:\d\d\.\d{3} \[INF\] session: up\n$`)
	if !stamped.MatchString(buf.String()) {
		t.Errorf("got %q, want a time-stamped line", buf.String())
	}

	buf.Reset()
	child.SetTimestamps(false)
	parent.Info("down")
	if buf.String() != "[INF] down\n" {
		t.Errorf("got %q, want %q", buf.String(), "[INF] down\n")
	}
}

func TestConcurrentSetTimestamps(t *testing.T) {
	l := Nop()
	child := l.Named("connector")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(on bool) {
			defer wg.Done()
			l.SetTimestamps(on)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			child.Error("dial failed")
		}()
	}
	wg.Wait()
}
