package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantLevel     logrus.Level
		wantErr       bool
	}{
		{"", "", logrus.InfoLevel, false},
		{"debug", "json", logrus.DebugLevel, false},
		{"WARN", "TEXT", logrus.WarnLevel, false},
		{"loud", "text", 0, true},
		{"info", "xml", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			log, err := New(tt.level, tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if log.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestJSONFields(t *testing.T) {
	log, err := New("info", "json")
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("chunk", 3).Warn("dropped")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["msg"] != "dropped" || entry["chunk"] != float64(3) || entry["level"] != "warning" {
		t.Errorf("entry = %v", entry)
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("nil logger not replaced")
	}
	l := logrus.New()
	if OrDiscard(l) != l {
		t.Error("non-nil logger replaced")
	}
}
