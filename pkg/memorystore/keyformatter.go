package memorystore

import "strings"

// compositeKeyPrefix is the literal prefix cache and vector-search backends
// assume to be bit-exact; changing it is a breaking change for every
// delegated provider.
const compositeKeyPrefix = "mesh:"

// KeyFormatter builds the flat composite-key address space used by cache
// and vector-search backends. It does no escaping: callers are responsible
// for avoiding ':' collisions in session IDs or keys.
type KeyFormatter struct{}

// Format returns "mesh:{sessionID}:{key}".
func (KeyFormatter) Format(sessionID, key string) string {
	var b strings.Builder
	b.Grow(len(compositeKeyPrefix) + len(sessionID) + len(key) + 1)
	b.WriteString(compositeKeyPrefix)
	b.WriteString(sessionID)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// splitCompositeKey decomposes a "mesh:{sessionID}:{key}" string back into
// its parts. ok is false if compositeKey doesn't carry the prefix or lacks
// the session/key separator, which a provider-shaped caller treats as a
// malformed key rather than guessing at a split.
func splitCompositeKey(compositeKey string) (sessionID, key string, ok bool) {
	rest, found := strings.CutPrefix(compositeKey, compositeKeyPrefix)
	if !found {
		return "", "", false
	}
	sessionID, key, found = strings.Cut(rest, ":")
	if !found {
		return "", "", false
	}
	return sessionID, key, true
}
