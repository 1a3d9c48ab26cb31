package db

import "strings"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ContainsPattern returns a lower-cased LIKE pattern that matches text
// anywhere. Wildcards in text are escaped with '!', so the clause must
// read "LIKE ? ESCAPE '!'".
func ContainsPattern(text string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(text))) + "%"
}
