package textproc

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"brakes", "brake"},
		{"Calipers", "caliper"},
		{"caresses", "caress"},
		{"batteries", "batteri"},
		{"class", "class"},
		{"agreed", "agree"},
		{"leaked", "leak"},
		{"bled", "bled"},
		{"leaking", "leak"},
		{"sing", "sing"},
		{"standardization", "standardize"},
		{"operational", "operate"},
		{"capabiliti", "capable"},
		{"operations", "operate"},
		{"owner's", "owner"},
	}

	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, Stem(tt.word))
		})
	}
}

func TestStem_ShortWordsOnlyLowercased(t *testing.T) {
	for _, w := range []string{"", "a", "OK", "Is", "ss", "éS"} {
		assert.Equal(t, strings.ToLower(w), Stem(w), "word %q", w)
	}
}

func TestStem_Deterministic(t *testing.T) {
	for _, w := range []string{"misfiring", "transmissions", "torqued", "realization", "ABS"} {
		assert.Equal(t, Stem(w), Stem(w))
	}
}

func TestStem_NotIdempotent(t *testing.T) {
	once := Stem("needed")
	assert.Equal(t, "need", once)
	assert.Equal(t, "nee", Stem(once), "a second pass keeps stripping")
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Car won't start; the O2 sensor's code is P0420!")
	assert.Equal(t, []string{"car", "won", "start", "the", "sensor", "code", "p0420"}, got)
}

func TestStemmedTokens(t *testing.T) {
	assert.Equal(t, []string{"brake", "pad", "leak"}, StemmedTokens("Brake pads leaking"))
}

func TestSplitSentences(t *testing.T) {
	text := "Check the fluid level. Ok.\nReplace the brake pads if worn! Is the rotor warped? yes"
	got := SplitSentences(text, 10)

	assert.Equal(t, []string{
		"Check the fluid level",
		"Replace the brake pads if worn",
		"Is the rotor warped",
	}, got)
}

func TestSplitSentences_KeepsDecimals(t *testing.T) {
	got := SplitSentences("Oil capacity is 4.4 quarts with filter. Use 0W-20 synthetic oil.", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "Oil capacity is 4.4 quarts with filter", got[0])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10, "..."))
	assert.Equal(t, "abcde...", Truncate("abcde fghij", 8, "..."))
	assert.Equal(t, "ñandú...", Truncate("ñandú torque", 8, "..."))
	assert.Equal(t, "..", Truncate("abcdef", 2, "..."))

	long := strings.Repeat("brake ", 200)
	for _, limit := range []int{10, 300, 500} {
		got := Truncate(long, limit, "...")
		assert.Equal(t, limit, utf8.RuneCountInString(got), "limit %d", limit)
		assert.True(t, strings.HasSuffix(got, "..."))
	}
}

func TestStripMarkup(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
<nav>Home | Manuals</nav>
<h1>Brake Bleeding</h1>
<p>Open the   bleeder valve.</p><p>Pump the pedal.</p>
<script>alert(1)</script>
</body></html>`

	got := StripMarkup(html)
	assert.Equal(t, "Brake Bleeding\nOpen the bleeder valve.\nPump the pedal.", got)
}

func TestStripMarkup_PlainTextUnchanged(t *testing.T) {
	text := "Torque lug nuts to 80 ft-lb. Use a 3 < 4 rule of thumb."
	assert.False(t, LooksLikeMarkup(text))
	assert.Equal(t, text, StripMarkup(text))
}
