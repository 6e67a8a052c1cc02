// ABOUTME: Emoji glyph extraction from message bodies.
// ABOUTME: Matches the standard emoji Unicode block ranges.

package event

// emojiRanges lists the Unicode block ranges treated as emoji glyphs.
var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F}, // Emoticons
	{0x1F300, 0x1F5FF}, // Misc Symbols and Pictographs
	{0x1F680, 0x1F6FF}, // Transport and Map
	{0x1F900, 0x1F9FF}, // Supplemental Symbols and Pictographs
	{0x2600, 0x26FF},   // Misc Symbols
	{0x2700, 0x27BF},   // Dingbats
}

// ExtractEmojis returns the emoji glyphs found in s, in order of appearance.
// Returns nil when the string contains none.
func ExtractEmojis(s string) []string {
	var out []string
	for _, r := range s {
		if isEmoji(r) {
			out = append(out, string(r))
		}
	}
	return out
}

func isEmoji(r rune) bool {
	for _, rng := range emojiRanges {
		if r >= rng[0] && r <= rng[1] {
			return true
		}
	}
	return false
}
