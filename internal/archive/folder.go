package archive

import (
	"regexp"
	"strings"
)

// FallbackFolder is used when a folder name slugifies to nothing
const FallbackFolder = "other"

// wellKnownFolders maps IMAP folder names (case-insensitive) to local paths.
// Provider-specific folders like [Gmail]/... go under a vendor subtree.
var wellKnownFolders = map[string]string{
	"inbox":                    "inbox",
	"sent":                     "sent",
	"sent items":               "sent",
	"sent messages":            "sent",
	"drafts":                   "draft",
	"draft":                    "draft",
	"trash":                    "trash",
	"deleted":                  "trash",
	"spam":                     "spam",
	"junk":                     "spam",
	"outbox":                   "outbox",
	"[gmail]/sent mail":        "gmail/sent",
	"[gmail]/sent":             "gmail/sent",
	"[gmail]/gesendet":         "gmail/sent",
	"[google mail]/sent mail":  "gmail/sent",
	"[gmail]/drafts":           "gmail/draft",
	"[gmail]/draft":            "gmail/draft",
	"[gmail]/entwürfe":         "gmail/draft",
	"[google mail]/drafts":     "gmail/draft",
	"[gmail]/trash":            "gmail/trash",
	"[gmail]/papierkorb":       "gmail/trash",
	"[google mail]/trash":      "gmail/trash",
	"[gmail]/spam":             "gmail/spam",
	"[google mail]/spam":       "gmail/spam",
	"[gmail]/all mail":         "gmail/allmail",
	"[gmail]/alle nachrichten": "gmail/allmail",
	"[google mail]/all mail":   "gmail/allmail",
	"[gmail]/marked":           "gmail/marked",
	"[gmail]/markiert":         "gmail/marked",
	"[gmail]/important":        "gmail/important",
	"[gmail]/wichtig":          "gmail/important",
}

// gmailLabels maps Gmail API label IDs to local paths
var gmailLabels = map[string]string{
	"INBOX":  "inbox",
	"SENT":   "sent",
	"DRAFT":  "draft",
	"TRASH":  "trash",
	"SPAM":   "spam",
	"UNREAD": "unread",
}

var (
	reSlugUnsafe = regexp.MustCompile(`[^\w\s\-.]`)
	reSlugSep    = regexp.MustCompile(`[.\s_\-]+`)
)

// ResolveFolder maps a remote folder name to a relative local path.
// Well-known names use the curated table; anything else is slugified per
// path segment. The result is always a non-empty relative path and is
// deterministic for a given input.
func ResolveFolder(folderName string) string {
	key := strings.TrimSpace(strings.ToLower(folderName))
	if mapped, ok := wellKnownFolders[key]; ok {
		return mapped
	}

	parts := strings.Split(strings.ReplaceAll(folderName, `\`, "/"), "/")
	var slugs []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			slugs = append(slugs, slugifySegment(s))
		}
	}
	if len(slugs) == 0 {
		return FallbackFolder
	}
	// Normalise the Google Mail vendor prefix so localized variants share a subtree
	if slugs[0] == "gmail" || slugs[0] == "google_mail" {
		slugs[0] = "gmail"
	}
	return strings.Join(slugs, "/")
}

// ResolveLabel maps a Gmail API label ID to a relative local path
func ResolveLabel(labelID string) string {
	if mapped, ok := gmailLabels[labelID]; ok {
		return mapped
	}
	name := strings.ReplaceAll(strings.ToLower(labelID), "-", "_")
	name = slugifySegment(name)
	if name == "" {
		return FallbackFolder
	}
	return name
}

// slugifySegment converts one folder path segment to a safe directory name:
// brackets stripped, lowercased, non-word characters removed, separator runs
// collapsed to "_", capped at 40 characters.
func slugifySegment(name string) string {
	name = strings.ReplaceAll(name, "[", "")
	name = strings.ReplaceAll(name, "]", "")
	name = strings.TrimSpace(strings.ToLower(name))
	name = reSlugUnsafe.ReplaceAllString(name, "")
	name = reSlugSep.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return FallbackFolder
	}
	if len(name) > 40 {
		name = name[:40]
	}
	return name
}
