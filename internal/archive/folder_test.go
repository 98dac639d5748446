package archive

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestResolveFolder(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INBOX", "inbox"},
		{"inbox", "inbox"},
		{"Sent Items", "sent"},
		{"Drafts", "draft"},
		{"Junk", "spam"},
		{"[Gmail]/Sent Mail", "gmail/sent"},
		{"[Gmail]/All Mail", "gmail/allmail"},
		{"[Gmail]/Alle Nachrichten", "gmail/allmail"},
		{"[Google Mail]/Trash", "gmail/trash"},
		{"[Gmail]/Entwürfe", "gmail/draft"},
		{"Work/Projects 2024", "work/projects_2024"},
		{`Archive\Old Stuff`, "archive/old_stuff"},
		{"[Gmail]/Benachrichtigung/KartinaTV", "gmail/benachrichtigung/kartinatv"},
		{"///", "other"},
		{"", "other"},
		{"!!!", "other"},
	}

	for _, tt := range tests {
		if got := ResolveFolder(tt.in); got != tt.want {
			t.Errorf("ResolveFolder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INBOX", "inbox"},
		{"SENT", "sent"},
		{"DRAFT", "draft"},
		{"SPAM", "spam"},
		{"CATEGORY-PROMOTIONS", "category_promotions"},
		{"My Custom Label", "my_custom_label"},
	}

	for _, tt := range tests {
		if got := ResolveLabel(tt.in); got != tt.want {
			t.Errorf("ResolveLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Property: every resolved folder path is non-empty, relative, safe to join
// under an archive directory, and deterministic.
func TestProperty_ResolveFolderProducesSafePaths(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("resolved_path_is_safe_and_stable", prop.ForAll(
		func(name string) bool {
			first := ResolveFolder(name)
			second := ResolveFolder(name)
			if first != second || first == "" {
				return false
			}
			if filepath.IsAbs(first) {
				return false
			}
			for _, seg := range strings.Split(first, "/") {
				if seg == "" || seg == "." || seg == ".." || len(seg) > 40 {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
