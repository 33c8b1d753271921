package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// HashKey hashes the given parts into a fixed length hex key.
// Parts are separated by a NUL byte so ("ab","c") and ("a","bc") differ.
func HashKey(parts ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hasher.Sum(nil))
}

// NormalizeScope splits scope on whitespace and commas, drops duplicates and
// returns the scopes sorted and space separated.
func NormalizeScope(scopes ...string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range scopes {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		}) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// Key builds a namespaced cache key: prefix, then name, then the hash of parts.
func Key(prefix, name string, parts ...string) string {
	return prefix + name + ":" + HashKey(parts...)
}
