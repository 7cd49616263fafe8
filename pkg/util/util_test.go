package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := NewManualClock(start)

	fired := c.After(2 * time.Second)
	c.Advance(time.Second)
	select {
	case <-fired:
		t.Fatalf("timer fired early")
	default:
	}
	if c.Waiters() != 1 {
		t.Errorf("waiters = %d, want 1", c.Waiters())
	}

	c.Advance(time.Second)
	select {
	case got := <-fired:
		if !got.Equal(start.Add(2 * time.Second)) {
			t.Errorf("fired at %s", got)
		}
	default:
		t.Fatalf("timer did not fire")
	}
	if c.Waiters() != 0 || !c.Now().Equal(start.Add(2*time.Second)) {
		t.Errorf("clock state after firing: waiters=%d now=%s", c.Waiters(), c.Now())
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	logger, err := NewLoggerWithFile(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Sugar().Infow("order_submitted", "user", "100")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"order_submitted"`) || !strings.Contains(line, `"ts":`) {
		t.Errorf("log line = %s", line)
	}
}

func TestValidSnowflake(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"80351110224678912", true},
		{"1", true},
		{"", false},
		{"0", false},
		{"-5", false},
		{"system", false},
		{"12ab", false},
		{"123456789012345678901", false},
	}
	for _, tt := range tests {
		if got := ValidSnowflake(tt.in); got != tt.want {
			t.Errorf("ValidSnowflake(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
