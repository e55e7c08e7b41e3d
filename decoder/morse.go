package decoder

import "unicode"

// MaxPatternLen is the longest dit/dah pattern the table holds (the 8-dot error signal).
const MaxPatternLen = 8

// Prosign characters. They have no printable ITU glyph, so they map to spare ASCII.
const (
	ProsignSK    = '*' // end of contact
	ProsignCT    = '<' // commence transmission (KA)
	ProsignError = '#' // eight dits
)

type morseEntry struct {
	pattern string
	char    byte
}

var morseTable = [...]morseEntry{
	{".-", 'A'}, {"-...", 'B'}, {"-.-.", 'C'}, {"-..", 'D'}, {".", 'E'},
	{"..-.", 'F'}, {"--.", 'G'}, {"....", 'H'}, {"..", 'I'}, {".---", 'J'},
	{"-.-", 'K'}, {".-..", 'L'}, {"--", 'M'}, {"-.", 'N'}, {"---", 'O'},
	{".--.", 'P'}, {"--.-", 'Q'}, {".-.", 'R'}, {"...", 'S'}, {"-", 'T'},
	{"..-", 'U'}, {"...-", 'V'}, {".--", 'W'}, {"-..-", 'X'}, {"-.--", 'Y'},
	{"--..", 'Z'},

	{"-----", '0'}, {".----", '1'}, {"..---", '2'}, {"...--", '3'}, {"....-", '4'},
	{".....", '5'}, {"-....", '6'}, {"--...", '7'}, {"---..", '8'}, {"----.", '9'},

	{".-.-.-", '.'}, {"--..--", ','}, {"..--..", '?'}, {".----.", '\''},
	{"-.-.--", '!'}, {"-..-.", '/'}, {"-.--.", '('}, {"-.--.-", ')'},
	{".-...", '&'}, {"---...", ':'}, {"-.-.-.", ';'}, {"-...-", '='},
	{".-.-.", '+'}, {"-....-", '-'}, {"..--.-", '_'}, {".-..-.", '"'},
	{"...-..-", '$'}, {".--.-.", '@'},

	{"...-.-", ProsignSK}, {"-.-.-", ProsignCT}, {"........", ProsignError},
}

var (
	byPattern = make(map[string]byte, len(morseTable))
	byChar    [128]string
)

func init() {
	for _, e := range morseTable {
		byPattern[e.pattern] = e.char
		byChar[e.char] = e.pattern
	}
}

// Lookup returns the character for a dit/dah pattern such as ".-".
// It returns 0 and false for an unknown pattern.
func Lookup(pattern string) (byte, bool) {
	c, ok := byPattern[pattern]
	return c, ok
}

// Reverse returns the pattern for a character. Letters match case-insensitively.
func Reverse(c rune) (string, bool) {
	c = unicode.ToUpper(c)
	if c < 0 || int(c) >= len(byChar) {
		return "", false
	}

	p := byChar[c]

	return p, p != ""
}

// TableSize returns the number of entries in the Morse table.
func TableSize() int {
	return len(morseTable)
}
