package properties

import (
	"strings"
	"unicode"
)

const (
	PostgresPrefix = "postgres."
	JVMPrefix      = "jvm."

	// Map-valued Spring keys below this prefix are handed to Hibernate
	// untouched, so relaxed binding does not apply to the remainder.
	jpaPropertiesPrefix = "spring.jpa.properties."
)

// CanonicalKey normalises a Spring property key to its lower-case kebab
// form: "spring.datasource.hikari.maximumPoolSize" becomes
// "spring.datasource.hikari.maximum-pool-size".
func CanonicalKey(key string) string {
	key = strings.TrimSpace(key)
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, jpaPropertiesPrefix) {
		return jpaPropertiesPrefix + key[len(jpaPropertiesPrefix):]
	}
	if strings.HasPrefix(lower, PostgresPrefix) || strings.HasPrefix(lower, JVMPrefix) {
		return lower
	}

	segments := strings.Split(key, ".")
	for i, segment := range segments {
		segments[i] = kebab(segment)
	}
	return strings.Join(segments, ".")
}

func kebab(segment string) string {
	var b strings.Builder
	inIndex := false
	runes := []rune(segment)
	for i, r := range runes {
		switch {
		case r == '[':
			inIndex = true
			b.WriteRune(r)
		case r == ']':
			inIndex = false
			b.WriteRune(r)
		case inIndex:
			b.WriteRune(r)
		case r == '_':
			b.WriteRune('-')
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '-' && runes[i-1] != '_' && !unicode.IsUpper(runes[i-1]) {
				b.WriteRune('-')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PostgresKey returns the canonical key for a PostgreSQL GUC name.
func PostgresKey(guc string) string {
	return PostgresPrefix + strings.ToLower(strings.TrimSpace(guc))
}

// GUCName strips the postgres prefix from a canonical key.
func GUCName(key string) string {
	return strings.TrimPrefix(key, PostgresPrefix)
}
