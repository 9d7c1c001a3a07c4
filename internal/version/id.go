package version

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"
)

// Version IDs sort lexicographically in chronological order:
// YYYYMMDD-SSSSS-XXXXX, where SSSSS is the zero-padded second of day
// in UTC and XXXXX is a random suffix from a 31-letter alphabet
// without ambiguous glyphs.
const idAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"

const suffixLen = 5

// NewID generates an ID for the given instant.
func NewID(now time.Time) (string, error) {
	now = now.UTC()
	secondOfDay := now.Hour()*3600 + now.Minute()*60 + now.Second()

	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%05d-%s", now.Format("20060102"), secondOfDay, suffix), nil
}

// randomSuffix draws suffixLen letters uniformly from the alphabet,
// rejection-sampling the raw bytes to avoid modulo bias (256 is not a
// multiple of 31).
func randomSuffix() ([]byte, error) {
	// largest multiple of the alphabet size below 256
	limit := byte(256 / len(idAlphabet) * len(idAlphabet))

	suffix := make([]byte, 0, suffixLen)
	buf := make([]byte, suffixLen*2)
	for len(suffix) < suffixLen {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("version id entropy: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			suffix = append(suffix, idAlphabet[int(b)%len(idAlphabet)])
			if len(suffix) == suffixLen {
				break
			}
		}
	}
	return suffix, nil
}

// ParseID recovers the creation instant (second precision, UTC) from
// an ID.
func ParseID(id string) (time.Time, error) {
	if len(id) != 8+1+5+1+suffixLen || id[8] != '-' || id[14] != '-' {
		return time.Time{}, fmt.Errorf("malformed version id %q", id)
	}

	day, err := time.Parse("20060102", id[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed version id %q: %w", id, err)
	}

	secs, err := strconv.Atoi(id[9:14])
	if err != nil || secs < 0 || secs > 86399 {
		return time.Time{}, fmt.Errorf("malformed version id %q: bad second-of-day", id)
	}

	for _, c := range id[15:] {
		if !validIDChar(byte(c)) {
			return time.Time{}, fmt.Errorf("malformed version id %q: bad suffix", id)
		}
	}

	return day.Add(time.Duration(secs) * time.Second).UTC(), nil
}

func validIDChar(c byte) bool {
	for i := 0; i < len(idAlphabet); i++ {
		if idAlphabet[i] == c {
			return true
		}
	}
	return false
}
