// Package narration linearizes parsed page content into spoken fragments
// for a speech-synthesis collaborator.
package narration

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/layoutnarrator/internal/models"
)

// Fixed fragments for regions whose content is not read aloud.
const (
	TableFragment   = "Table detected."
	PictureFragment = "Image detected."
)

// Narrate builds the script for the given pages: a "Page N." announcement
// followed by one fragment per content item. It never fails.
func Narrate(pages []models.PageContent) models.NarrationScript {
	var fragments []string
	for i, page := range pages {
		n := page.Page
		if n <= 0 {
			n = i + 1
		}
		fragments = append(fragments, fmt.Sprintf("Page %d.", n))
		for _, item := range page.Content {
			fragments = append(fragments, Fragment(item.Tag, item.Content))
		}
	}
	return models.NarrationScript{Fragments: fragments}
}

// Fragment maps one content item to its spoken form. Unknown tags are read
// as-is.
func Fragment(tag, content string) string {
	switch strings.ToLower(tag) {
	case "list-item":
		return announce("Bullet point.", content)
	case "section-header":
		return announce("Section heading.", content)
	case "title":
		return announce("Title.", content)
	case "text":
		return content
	case "table":
		return TableFragment
	case "picture":
		return PictureFragment
	default:
		return content
	}
}

// announce prefixes content with a cue and closes it as a sentence so the
// synthesizer pauses before the next fragment.
func announce(cue, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return cue
	}
	if !strings.ContainsAny(content[len(content)-1:], ".!?:;") {
		content += "."
	}
	return cue + " " + content
}

// Text joins the script into the single string handed to speech synthesis.
// Empty fragments are skipped.
func Text(script models.NarrationScript) string {
	parts := make([]string, 0, len(script.Fragments))
	for _, f := range script.Fragments {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
