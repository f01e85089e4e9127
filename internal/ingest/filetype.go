package ingest

import (
	"math"
	"strconv"
	"strings"
)

var fileTypes = map[string]string{
	"pdf":  "PDF",
	"docx": "DOCX",
	"doc":  "DOC",
	"txt":  "TXT",
	"md":   "Markdown",
	"html": "HTML",
	"htm":  "HTML",
}

// FileType maps a file name to its display type by extension.
// Names without a known extension are "Unknown".
func FileType(name string) string {
	ext := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	if t, ok := fileTypes[strings.ToLower(ext)]; ok {
		return t
	}
	return "Unknown"
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders a byte count with 1024-based units and at most two
// decimals, trailing zeros dropped: 1536 -> "1.5 KB".
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := 0
	div := int64(1)
	for i < len(sizeUnits)-1 && n >= div*1024 {
		div *= 1024
		i++
	}
	v := float64(n) / float64(div)
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
