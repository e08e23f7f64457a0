package observability

import "testing"

func TestStdLoggerFormatsLevelPrefix(t *testing.T) {
	l := NewStdLogger().(*stdLogger)
	got := l.format("INFO", "hello")
	if got != "[INFO] hello" {
		t.Fatalf("format = %q", got)
	}
}

func TestStdLoggerWithFieldsAppendsKeyValues(t *testing.T) {
	l := NewStdLogger().WithFields(map[string]interface{}{"handle": ":00000001"}).(*stdLogger)
	got := l.format("WARN", "overloaded")
	want := "[WARN] overloaded handle=:00000001"
	if got != want {
		t.Fatalf("format = %q, want %q", got, want)
	}
}

func TestStdLoggerWithFieldsMerges(t *testing.T) {
	base := NewStdLogger().WithFields(map[string]interface{}{"a": 1}).(*stdLogger)
	merged := base.WithFields(map[string]interface{}{"b": 2}).(*stdLogger)
	if len(merged.fields) != 2 {
		t.Fatalf("expected 2 merged fields, got %d", len(merged.fields))
	}
	if merged.fields["a"] != 1 || merged.fields["b"] != 2 {
		t.Fatalf("unexpected merged fields: %+v", merged.fields)
	}
	if len(base.fields) != 1 {
		t.Fatal("WithFields must not mutate the receiver")
	}
}

func TestStdLoggerDoesNotPanicOnFormattedCalls(t *testing.T) {
	l := NewStdLogger()
	l.Errorf("err %d", 1)
	l.Warnf("warn %s", "x")
	l.Infof("info")
	l.Debugf("debug %v", true)
}
