package relay

import (
	"strings"

	"jarvisrelay/internal/jarvis"
)

// replyKeys are the fields shown to the user outside verbose mode.
var replyKeys = map[string]bool{
	"answer": true,
	"info":   true,
	"debug":  true,
}

// FormatReply renders an assistant response as chat text. Verbose mode shows
// every field as "key: value"; otherwise only answer, info and debug values
// are shown. A newline separates a field from non-empty text before it, so
// empty values never add blank lines.
func FormatReply(resp jarvis.Response, verbose bool) (string, error) {
	records, err := resp.Records()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, rec := range records {
		for _, f := range rec {
			if !verbose && !replyKeys[f.Key] {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			if verbose {
				b.WriteString(f.Key)
				b.WriteString(": ")
			}
			b.WriteString(jarvis.Text(f.Value))
		}
	}
	return b.String(), nil
}
