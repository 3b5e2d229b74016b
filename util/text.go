// util/text.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// StopShouting turns text of the form "UNITED AIRLINES" to "United Airlines"
func StopShouting(orig string) string {
	var s strings.Builder
	wasSpace := true
	for _, ch := range orig {
		if unicode.IsSpace(ch) {
			wasSpace = true
			s.WriteRune(ch)
		} else if unicode.IsLetter(ch) {
			if wasSpace {
				s.WriteRune(unicode.ToUpper(ch))
				wasSpace = false
			} else {
				s.WriteRune(unicode.ToLower(ch))
			}
		} else {
			s.WriteRune(ch)
		}
	}

	return s.String()
}

func IsAllNumbers(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// HashString64 returns a stable 64-bit hash of s, suitable for seeding
// per-entity random number generators.
func HashString64(s string) uint64 {
	hash := fnv.New64a()
	hash.Write([]byte(s))
	return hash.Sum64()
}
