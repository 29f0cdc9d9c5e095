package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	a, b := NewID("story"), NewID("story")
	if a == b {
		t.Fatalf("NewID() returned %q twice", a)
	}
	if !strings.HasPrefix(a, "story_") || len(a) != len("story_")+32 {
		t.Fatalf("NewID(story) = %q", a)
	}
	if id := NewID(""); len(id) != 32 || strings.Contains(id, "_") {
		t.Fatalf("NewID(\"\") = %q", id)
	}
}
