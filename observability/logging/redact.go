package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"op":        {},
	"id":        {},
	"event":     {},
	"route":     {},
	"status":    {},
	"requestid": {},
}

// accountKeys name attributes that carry an account address. They are logged
// shortened so a line can still be correlated with a caller without exposing
// the full address.
var accountKeys = map[string]struct{}{
	"caller":       {},
	"issuer":       {},
	"creator":      {},
	"buyer":        {},
	"owner":        {},
	"address":      {},
	"manager":      {},
	"previous":     {},
	"feerecipient": {},
}

// IsAccountKey reports whether key carries an account address.
func IsAccountKey(key string) bool {
	_, ok := accountKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// ShortenAddress keeps the human-readable part and the last four characters of
// an address (mkt1****wxyz, 0x****wxyz). Values too short to shorten are
// redacted outright.
func ShortenAddress(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}
	prefix := ""
	switch {
	case strings.HasPrefix(trimmed, "0x"):
		prefix = "0x"
	case strings.LastIndex(trimmed, "1") > 0:
		prefix = trimmed[:strings.LastIndex(trimmed, "1")+1]
	}
	rest := trimmed[len(prefix):]
	if len(rest) <= 8 {
		return RedactedValue
	}
	return prefix + "****" + rest[len(rest)-4:]
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction. Tests use this to ensure sensitive keys remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. Account keys are shortened rather than redacted. The
// original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	if IsAccountKey(key) {
		return slog.String(key, ShortenAddress(value))
	}
	return slog.String(key, RedactedValue)
}

// maskAccounts shortens account attributes that reach the handler unmasked,
// such as event attributes logged by an emitter.
func maskAccounts(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsAccountKey(attr.Key) {
		return attr
	}
	value := attr.Value.String()
	if value == RedactedValue {
		return attr
	}
	return slog.String(attr.Key, ShortenAddress(value))
}
