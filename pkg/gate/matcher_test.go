package gate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatchPath(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		target  string
		want    bool
	}{
		{"double star spans segments", "secrets/**", "secrets/key.txt", true},
		{"double star spans nested segments", "secrets/**", "secrets/prod/db/key.txt", true},
		{"double star prefix", "**/*.pem", "deploy/certs/server.pem", true},
		{"single star one segment", "src/*.go", "src/main.go", true},
		{"single star does not cross segments", "src/*.go", "src/pkg/main.go", false},
		{"no wildcard matches by substring", ".env", "config/.env.local", true},
		{"no wildcard substring miss", ".env", "config/app.yaml", false},
		{"different directory", "secrets/**", "src/secrets.go", false},
		{"double star suffix matches the directory", "secrets/**", "secrets", true},
		{"double star suffix needs the whole segment", "secrets/**", "secrets-old", false},
		{"globbed directory", "src/*/**", "src/a", true},
		{"empty pattern never matches", "", "anything", false},
		{"empty target never matches", "src/**", "", false},
		{"malformed pattern never matches", "src/[a-", "src/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchPath(tt.pattern, tt.target); got != tt.want {
				t.Errorf("MatchPath(%q, %q) = %v, expected %v", tt.pattern, tt.target, got, tt.want)
			}
		})
	}
}

func TestParseArguments_Malformed(t *testing.T) {
	inputs := []string{"", "   ", "{not json", "[1,2,3]", "null", `"a string"`}
	for _, in := range inputs {
		args := ParseArguments(in)
		if args == nil {
			t.Fatalf("ParseArguments(%q) returned nil map", in)
		}
		if len(args) != 0 {
			t.Errorf("Expected empty args for %q, got %v", in, args)
		}
	}
}

func TestExtractTargets(t *testing.T) {
	args := ParseArguments(`{
		"path": "./src/a.ts",
		"files": ["src/b.ts", 42, "src/a.ts", "/work/repo/docs/readme.md"],
		"baseline_file": "base.txt",
		"content": "not a target"
	}`)

	got := ExtractTargets(args, DefaultTargetKeys, "/work/repo")
	want := []string{"src/a.ts", "base.txt", "src/b.ts", "docs/readme.md"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractTargets() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTargets_DeclaredKeysOnly(t *testing.T) {
	args := ParseArguments(`{"path":"src/a.ts","destination":"out/b.ts"}`)

	got := ExtractTargets(args, []string{"destination"}, "")
	if diff := cmp.Diff([]string{"out/b.ts"}, got); diff != "" {
		t.Errorf("ExtractTargets() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct {
		raw     string
		workDir string
		want    string
	}{
		{"./a/b.go", "", "a/b.go"},
		{"a\\b\\c.go", "", "a/b/c.go"},
		{"/repo/x.go", "/repo", "x.go"},
		{"/repo", "/repo", "."},
		{"/elsewhere/x.go", "/repo", "/elsewhere/x.go"},
		{"  ", "", ""},
		{"src/../secrets/key.txt", "", "secrets/key.txt"},
		{"./src/./a//b.go", "", "src/a/b.go"},
		{"/repo/src/../.env", "/repo", ".env"},
		{"src/", "", "src"},
	}
	for _, tt := range tests {
		if got := NormalizeTarget(tt.raw, tt.workDir); got != tt.want {
			t.Errorf("NormalizeTarget(%q, %q) = %q, expected %q", tt.raw, tt.workDir, got, tt.want)
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	c := Constraints{
		NeverTouch:         []string{"secrets/**", "bad/[x"},
		RequireApprovalFor: []string{"write_file", ""},
		AlwaysAllow:        []AllowRule{ToolRule("read_file"), {Kind: "regex", Pattern: ".*"}},
	}

	errs := ValidatePatterns(c)
	if len(errs) != 3 {
		t.Fatalf("Expected 3 pattern errors, got %d: %v", len(errs), errs)
	}

	var patternErr *PatternError
	if !errors.As(errs[0], &patternErr) || patternErr.Field != "never_touch" {
		t.Errorf("Expected never_touch PatternError first, got %v", errs[0])
	}
	if !errors.Is(errs[1], ErrEmptyPattern) {
		t.Errorf("Expected ErrEmptyPattern, got %v", errs[1])
	}
	if !errors.Is(errs[2], ErrUnknownRuleKind) {
		t.Errorf("Expected ErrUnknownRuleKind, got %v", errs[2])
	}
}
