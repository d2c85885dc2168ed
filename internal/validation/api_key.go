package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"thirtyday/internal/models"
)

var knownScopes = map[string]struct{}{
	models.ScopeRead:   {},
	models.ScopeWrite:  {},
	models.ScopeDelete: {},
	models.ScopeAdmin:  {},
}

// Expiration choices offered when creating a key.
const (
	Expire7Days  = "7days"
	Expire30Days = "30days"
	Expire90Days = "90days"
	Expire1Year  = "1year"
	ExpireNever  = "never"
)

var expirations = map[string]time.Duration{
	Expire7Days:  7 * 24 * time.Hour,
	Expire30Days: 30 * 24 * time.Hour,
	Expire90Days: 90 * 24 * time.Hour,
	Expire1Year:  365 * 24 * time.Hour,
	ExpireNever:  0,
}

// ValidateAPIKeyName requires 2 to 100 characters.
func ValidateAPIKeyName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 2 {
		return fmt.Errorf("key name must be at least 2 characters")
	}
	if n > 100 {
		return fmt.Errorf("key name must not exceed 100 characters")
	}
	return nil
}

// NormalizeScopes lowercases, dedupes and checks scopes against the known set.
func NormalizeScopes(scopes []string) (models.Scopes, error) {
	out := models.Scopes{}
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.ToLower(strings.TrimSpace(s))
		if _, ok := knownScopes[s]; !ok {
			return nil, fmt.Errorf("unknown scope %q", s)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("select at least one permission scope")
	}
	return out, nil
}

// ExpiresAt resolves an expiration choice relative to now. "never" yields nil.
func ExpiresAt(choice string, now time.Time) (*time.Time, error) {
	d, ok := expirations[choice]
	if !ok {
		return nil, fmt.Errorf("unknown expiration %q", choice)
	}
	if d == 0 {
		return nil, nil
	}
	at := now.Add(d)
	return &at, nil
}
