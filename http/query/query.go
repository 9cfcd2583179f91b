// Package query implements the query string form used by both ends of the connection:
// plain key=value pairs joined with '&', without any URL-encoding.
package query

import (
	"strings"

	"github.com/indigo-web/h2pair/kv"
)

// Split separates the route from the raw query string at the first '?'. A path without
// '?' is returned as is with an empty query.
func Split(path string) (route, rawQuery string) {
	route, rawQuery, _ = strings.Cut(path, "?")
	return route, rawQuery
}

// Parse splits the raw query on '&' and every segment on '='. A segment that doesn't
// consist of exactly two parts is dropped and returned in malformed. Trailing empty parts
// don't count, so "a=" is malformed while "=b" results in an empty key. Empty segments
// are skipped. Repeating keys override previous values.
func Parse(rawQuery string) (params *kv.Storage, malformed []string) {
	params = kv.New()
	if len(rawQuery) == 0 {
		return params, nil
	}

	for _, segment := range strings.Split(rawQuery, "&") {
		if len(segment) == 0 {
			continue
		}

		key, value, ok := splitPair(segment)
		if !ok {
			malformed = append(malformed, segment)
			continue
		}

		params.Set(key, value)
	}

	return params, malformed
}

func splitPair(segment string) (key, value string, ok bool) {
	segment = strings.TrimRight(segment, "=")
	key, value, found := strings.Cut(segment, "=")
	if !found || strings.IndexByte(value, '=') != -1 {
		return "", "", false
	}

	return key, value, true
}

// Encode appends params to the path in their insertion order. Keys and values are
// written verbatim, so characters like '&' or '=' inside them break the round trip.
func Encode(path string, params *kv.Storage) string {
	if params == nil || params.Empty() {
		return path
	}

	var b strings.Builder
	b.Grow(len(path) + 1 + params.Len()*16)
	b.WriteString(path)
	b.WriteByte('?')

	for i, pair := range params.Expose() {
		if i > 0 {
			b.WriteByte('&')
		}

		b.WriteString(pair.Key)
		b.WriteByte('=')
		b.WriteString(pair.Value)
	}

	return b.String()
}
