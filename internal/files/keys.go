package files

import (
	"crypto/md5"
	"encoding/hex"
	"path"
	"strconv"
	"strings"
	"time"
)

const maxExtLen = 16

// KeyGenerator derives storage keys of the form <md5(name)>_<unix nanos><.ext>.
//
// Only the file name is hashed, so two uploads of the same name differ only
// by the timestamp component; uniqueness is bounded by clock resolution.
type KeyGenerator struct {
	Now func() time.Time
}

// New returns a URL-safe key for fileName that keeps its lower-cased extension.
func (g *KeyGenerator) New(fileName string) string {
	now := time.Now
	if g != nil && g.Now != nil {
		now = g.Now
	}

	sum := md5.Sum([]byte(fileName))
	var b strings.Builder
	b.Grow(hex.EncodedLen(len(sum)) + 24 + maxExtLen)
	b.WriteString(hex.EncodeToString(sum[:]))
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(now().UTC().UnixNano(), 10))
	b.WriteString(Extension(fileName))
	return b.String()
}

// Extension returns the lower-cased extension of fileName including the dot,
// or "" when it is missing or contains anything but ASCII letters and digits.
func Extension(fileName string) string {
	base := fileName
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	ext := strings.ToLower(path.Ext(base))
	if len(ext) < 2 || len(ext) > maxExtLen+1 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// ValidKey reports whether key could have been produced by KeyGenerator.
func ValidKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
		default:
			return false
		}
	}
	return !strings.HasPrefix(key, ".")
}

// KeyTime returns the arrival time embedded in a generated key. ok is false
// for keys that do not carry a parseable timestamp.
func KeyTime(key string) (t time.Time, ok bool) {
	i := strings.LastIndexByte(key, '_')
	if i < 0 {
		return time.Time{}, false
	}
	stamp := key[i+1:]
	if j := strings.IndexByte(stamp, '.'); j >= 0 {
		stamp = stamp[:j]
	}
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || nanos <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}
