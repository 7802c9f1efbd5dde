package bot

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"faceit-rolebot/internal/storage"
)

var customEmojiPattern = regexp.MustCompile(`^<(a?):([A-Za-z0-9_]{2,32}):([0-9]{5,25})>$`)

// parseEmoji accepts a custom emoji mention (<:name:id> or <a:name:id>) or a
// short unicode emoji.
func parseEmoji(input string) (storage.RoleEmoji, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return storage.RoleEmoji{}, false
	}
	if match := customEmojiPattern.FindStringSubmatch(input); match != nil {
		return storage.RoleEmoji{ID: match[3], Name: match[2], Animated: match[1] == "a"}, true
	}
	if strings.ContainsAny(input, "<>:") || utf8.RuneCountInString(input) > 8 {
		return storage.RoleEmoji{}, false
	}
	symbol := false
	for _, r := range input {
		if r >= 0x80 {
			symbol = true
			continue
		}
		if !unicode.IsDigit(r) && r != '#' && r != '*' {
			return storage.RoleEmoji{}, false
		}
	}
	return storage.RoleEmoji{Name: input}, symbol
}

func formatEmoji(emoji storage.RoleEmoji) string {
	if emoji.ID == "" {
		return emoji.Name
	}
	prefix := "<:"
	if emoji.Animated {
		prefix = "<a:"
	}
	return prefix + emoji.Name + ":" + emoji.ID + ">"
}
