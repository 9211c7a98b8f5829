package recording

import (
	"encoding/json"
	"fmt"
	"strings"

	"recsync/client"
	"recsync/storage"
)

// Format is a transcript rendition written into an item directory.
type Format string

const (
	// FormatJSON is the structured rendition (segments preserved).
	FormatJSON Format = "json"
	// FormatText is the canonical plain-text rendition.
	FormatText Format = "txt"
	// FormatMarkdown is the formatted rendition with headers and
	// per-segment timestamps.
	FormatMarkdown Format = "md"
)

// DefaultFormats is the rendition subset written when none is requested.
var DefaultFormats = []Format{FormatJSON, FormatText, FormatMarkdown}

// ParseFormats parses a comma-separated rendition list such as "json,txt".
func ParseFormats(s string) ([]Format, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultFormats, nil
	}
	var formats []Format
	for _, part := range strings.Split(s, ",") {
		switch f := Format(strings.TrimSpace(strings.ToLower(part))); f {
		case FormatJSON, FormatText, FormatMarkdown:
			formats = append(formats, f)
		default:
			return nil, fmt.Errorf("%w: unknown transcript format %q", storage.ErrInvalidInput, part)
		}
	}
	return formats, nil
}

// Render converts a transcript to the given rendition.
func Render(item client.Item, tr *client.Transcript, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(tr, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatText:
		return []byte(toText(tr)), nil
	case FormatMarkdown:
		return []byte(toMarkdown(item, tr)), nil
	default:
		return nil, fmt.Errorf("%w: unknown transcript format %q", storage.ErrInvalidInput, format)
	}
}

// toText renders the canonical plain-text transcript: the joined text, or
// one segment per line when no joined text is present.
func toText(tr *client.Transcript) string {
	if tr.Text != "" {
		return strings.TrimRight(tr.Text, "\n") + "\n"
	}
	var b strings.Builder
	for _, seg := range tr.Segments {
		if seg.Text == "" {
			continue
		}
		b.WriteString(seg.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// toMarkdown renders the transcript with a metadata header and timestamped
// segment lines.
func toMarkdown(item client.Item, tr *client.Transcript) string {
	var b strings.Builder

	title := item.Title
	if title == "" {
		title = item.ID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Recorded: %s\n", item.RecordedAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "- Duration: %s\n", formatDuration(item.Duration))
	if tr.Language != "" {
		fmt.Fprintf(&b, "- Language: %s\n", tr.Language)
	}
	b.WriteString("\n## Transcript\n\n")

	if len(tr.Segments) == 0 {
		b.WriteString(tr.Text)
		if tr.Text != "" && !strings.HasSuffix(tr.Text, "\n") {
			b.WriteString("\n")
		}
		return b.String()
	}

	for _, seg := range tr.Segments {
		if seg.Text == "" {
			continue
		}
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", formatTimestamp(seg.Start), seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "**[%s]** %s\n\n", formatTimestamp(seg.Start), seg.Text)
		}
	}
	return b.String()
}

// formatTimestamp renders seconds as mm:ss, or h:mm:ss past the hour mark.
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh%02dm", seconds/3600, (seconds%3600)/60)
}
