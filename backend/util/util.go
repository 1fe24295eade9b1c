package util

import (
	"crypto/md5"
	"encoding/binary"
	"strconv"
	"strings"
	"unicode"
)

// IdToSeed turns an entity id into a stable integer. Ids with a leading
// integer use that integer, the way the web client parsed them; anything
// else is hashed so every id still gets a deterministic seed.
func IdToSeed(id string) int64 {
	s := strings.TrimSpace(id)
	end := 0
	for i, r := range s {
		if i == 0 && (r == '-' || r == '+') {
			continue
		}
		if !unicode.IsDigit(r) {
			break
		}
		end = i + 1
	}
	if end > 0 {
		if n, err := strconv.ParseInt(s[:end], 10, 64); err == nil {
			return n
		}
	}
	sum := md5.Sum([]byte(s))
	return int64(binary.BigEndian.Uint32(sum[len(sum)-4:]))
}
