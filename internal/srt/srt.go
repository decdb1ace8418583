// Package srt encodes and decodes the SubRip subtitle format using only
// the standard library: its grammar is a half-dozen lines of fixed layout
// that no dependency would meaningfully simplify.
package srt

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/capgen-ai/capgen/internal/domain"
)

// Encode renders sentences as SRT text: numbered from 1, one blank line
// between entries, UTF-8, no BOM. Millisecond-truncates start/end the
// same way on every call so Encode(Decode(Encode(x))) == Encode(x).
func Encode(sentences []domain.Sentence) string {
	var b strings.Builder
	for i, s := range sentences {
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(s.Start), formatTimestamp(s.End))
		b.WriteString(s.Text)
		b.WriteString("\n")
		if i < len(sentences)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Entry is one decoded SRT block: a sequence number, a (start, end) span
// in seconds, and its text (possibly multi-line).
type Entry struct {
	Index int
	Start float64
	End   float64
	Text  string
}

// Decode parses SRT text into entries. It tolerates CRLF line endings and
// a trailing blank line, but otherwise expects the standard three-line
// block shape (index, timing, text...).
func Decode(content string) ([]Entry, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		index, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return nil, fmt.Errorf("srt: expected entry index, got %q", line)
		}

		if !scanner.Scan() {
			return nil, fmt.Errorf("srt: entry %d: missing timing line", index)
		}
		timingLine := strings.TrimRight(scanner.Text(), "\r")
		start, end, err := parseTimingLine(timingLine)
		if err != nil {
			return nil, fmt.Errorf("srt: entry %d: %w", index, err)
		}

		var textLines []string
		for scanner.Scan() {
			textLine := strings.TrimRight(scanner.Text(), "\r")
			if textLine == "" {
				break
			}
			textLines = append(textLines, textLine)
		}

		entries = append(entries, Entry{
			Index: index,
			Start: start,
			End:   end,
			Text:  strings.Join(textLines, "\n"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("srt: scan: %w", err)
	}
	return entries, nil
}

func parseTimingLine(line string) (start, end float64, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timing line %q", line)
	}
	start, err = parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// formatTimestamp renders seconds as HH:MM:SS,mmm, truncating (not
// rounding) to the millisecond to match Decode's truncation so round trips
// are symmetric.
func formatTimestamp(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	ms := d / time.Millisecond
	hours := ms / 3600000
	ms -= hours * 3600000
	minutes := ms / 60000
	ms -= minutes * 60000
	secs := ms / 1000
	ms -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

func parseTimestamp(s string) (float64, error) {
	var hours, minutes, secs, ms int
	_, err := fmt.Sscanf(s, "%d:%d:%d,%d", &hours, &minutes, &secs, &ms)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	total := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(ms)*time.Millisecond
	return total.Seconds(), nil
}
