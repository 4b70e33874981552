// Package fileid names card image pairs on disk: "<name>_front.<ext>" and
// "<name>_back.<ext>" in one directory form the pair "<name>".
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/hyperjump/cardex/internal/models"
)

const prefix = "pair-"

// ImageExtensions lists the file types picked up from disk.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}

// PairID returns a stable run ID for the pair name in dir.
// The same directory and name always yield the same ID.
func PairID(dir, name string) string {
	normalized := filepath.Join(filepath.Clean(dir), name)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:12])
}

// SplitSide parses a card image filename. It reports the pair name and side
// for "<name>_front.<ext>" or "<name>_back.<ext>" with a supported extension,
// matching the suffix case-insensitively.
func SplitSide(filename string) (name string, side models.Side, ok bool) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if !supported(ext) {
		return "", "", false
	}
	stem := base[:len(base)-len(ext)]
	lower := strings.ToLower(stem)
	for _, s := range models.Sides {
		suffix := "_" + string(s)
		if strings.HasSuffix(lower, suffix) && len(stem) > len(suffix) {
			return stem[:len(stem)-len(suffix)], s, true
		}
	}
	return "", "", false
}

func supported(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
