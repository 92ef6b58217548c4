package converter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Progress-text scraping for the aria_mps log stream. The heuristics here
// are contract, not incident: the first matching stage keyword wins, and
// the LAST percentage in a line wins.

var (
	percentRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?|\.\d+)\s*%`)

	hashingRe    = regexp.MustCompile(`\bHashing\b`)
	indexRe      = regexp.MustCompile(`(?i)\bIndex\b|Health[\s_-]?check`)
	downloadRe   = regexp.MustCompile(`(?i)\bDownloaded\b|\bDownloading\b`)
	encryptRe    = regexp.MustCompile(`(?i)\bEncrypting\b|\bEncryption\b`)
	uploadRe     = regexp.MustCompile(`(?i)\bUploading\b`)

	logPrefixRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d+\s+\[\d+\]\s+\[\w+\]\s+\[[^\]]+\]\s+-\s+`)
	timestampRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2},\d+\s+`)
	vrsTagRe     = regexp.MustCompile(`\[vrs:[^\]]+\]\s*`)
	chunkSizeRe  = regexp.MustCompile(`Uploading\s+with\s+chunk_size\s+[\d.]+\s+MB\s+\|\s+`)
)

// ParsePercentage extracts the last percentage value from a log line.
// Lines like "12% done, 45.5%" yield 45.5.
func ParsePercentage(line string) (float64, bool) {
	matches := percentRe.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}
	val, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// ExtractStage infers the coarse processing stage from a log line.
// Returns "" when no stage keyword is present.
func ExtractStage(line string) string {
	switch {
	case hashingRe.MatchString(line):
		return "Hashing"
	case indexRe.MatchString(line):
		return "Index"
	case downloadRe.MatchString(line):
		return "Downloaded"
	case encryptRe.MatchString(line):
		return "Encrypting"
	case uploadRe.MatchString(line):
		return "Uploading"
	}
	return ""
}

// TruncatePercentages rewrites every percentage in the line truncated to
// two decimal places, e.g. "45.6789%" becomes "45.67%".
func TruncatePercentages(line string) string {
	return percentRe.ReplaceAllStringFunc(line, func(m string) string {
		sub := percentRe.FindStringSubmatch(m)
		val, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return m
		}
		return fmt.Sprintf("%.2f%%", truncate2(val))
	})
}

// CleanMessage strips the aria_mps timestamp-and-level prefix, bracketed
// vrs path annotations, and the verbose chunked-upload phrase from a line.
func CleanMessage(line string) string {
	cleaned := logPrefixRe.ReplaceAllString(line, "")
	if cleaned == line {
		cleaned = timestampRe.ReplaceAllString(line, "")
	}
	cleaned = vrsTagRe.ReplaceAllString(cleaned, "")
	cleaned = chunkSizeRe.ReplaceAllString(cleaned, "Uploading: ")
	return strings.TrimSpace(cleaned)
}

func truncate2(val float64) float64 {
	return math.Trunc(val*100) / 100
}
