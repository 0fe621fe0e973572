package session

import "regexp"

// Bound pronoun set, checked in order. Longer phrases come first so
// "this stock" is rewritten as a unit rather than leaving "this" behind.
// This is a best-effort textual rewrite, not a parser.
var pronounPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthis stock\b`),
	regexp.MustCompile(`(?i)\bit\b`),
	regexp.MustCompile(`(?i)\bthat\b`),
}

// ResolvePronouns substitutes the session's most recently mentioned
// symbol for bound pronouns in the query. Returns the query unchanged
// when no pronoun is present or the session has no symbol history.
func (m *Manager) ResolvePronouns(sessionID, query string) string {
	matched := false
	for _, p := range pronounPatterns {
		if p.MatchString(query) {
			matched = true
			break
		}
	}
	if !matched {
		return query
	}

	symbol := m.MostRecentSymbol(sessionID)
	if symbol == "" {
		return query
	}

	resolved := query
	for _, p := range pronounPatterns {
		resolved = p.ReplaceAllString(resolved, symbol)
	}

	if resolved != query {
		m.log.Debug().
			Str("session", sessionID).
			Str("symbol", symbol).
			Str("resolved", resolved).
			Msg("Resolved pronoun reference")
	}

	return resolved
}
