package protocol

import "testing"

func TestPatternExactMatch(t *testing.T) {
	p, err := CompilePattern("foo")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !p.Matches("foo") {
		t.Error("expected match on identical subject")
	}
	if p.Matches("foo.bar") {
		t.Error("exact pattern should not match longer subject")
	}
}

func TestPatternStarMatchesSingleToken(t *testing.T) {
	p, err := CompilePattern("a.*.c")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !p.Matches("a.x.c") {
		t.Error("expected a.*.c to match a.x.c")
	}
	if p.Matches("a.x.y.c") {
		t.Error("a.*.c should not match a.x.y.c")
	}
}

func TestPatternTailWildcard(t *testing.T) {
	p, err := CompilePattern("a.>")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !p.Matches("a") {
		t.Error("a.> should match bare 'a'")
	}
	if !p.Matches("a.b") {
		t.Error("a.> should match a.b")
	}
	if !p.Matches("a.b.c") {
		t.Error("a.> should match a.b.c")
	}
}

func TestPatternTailWildcardMustBeFinalToken(t *testing.T) {
	if _, err := CompilePattern("a.>.b"); err == nil {
		t.Error("expected error for content after '>'")
	}
}

func TestPatternRejectsEmptyToken(t *testing.T) {
	if _, err := CompilePattern("a..b"); err == nil {
		t.Error("expected error for empty token")
	}
}
