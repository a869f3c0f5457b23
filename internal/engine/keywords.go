// ABOUTME: Handoff keyword parsing and matching against visitor messages

package engine

import "strings"

// SplitKeywords parses a comma-separated keyword list as stored in agent
// settings. Entries are trimmed; empty entries are dropped.
func SplitKeywords(list string) []string {
	parts := strings.Split(list, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}

// MatchesKeyword reports whether the message contains any keyword as a
// case-insensitive substring. Substring matching is intentional: "agent"
// matches "agentic" too, and tenants tune their keyword lists around that
// behavior.
func MatchesKeyword(message string, keywords []string) bool {
	lower := strings.ToLower(message)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
