package textproc

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var punctuation = strings.NewReplacer(
	"、", ", ", "。", ". ", "…", "...", "「", `"`, "」", `"`,
	"『", `"`, "』", `"`, "？", "?", "！", "!", "　", " ",
)

// digraphs are matched before single kana.
var digraphs = map[string]string{
	"きゃ": "kya", "きゅ": "kyu", "きょ": "kyo",
	"しゃ": "sha", "しゅ": "shu", "しょ": "sho", "しぇ": "she",
	"ちゃ": "cha", "ちゅ": "chu", "ちょ": "cho", "ちぇ": "che",
	"にゃ": "nya", "にゅ": "nyu", "にょ": "nyo",
	"ひゃ": "hya", "ひゅ": "hyu", "ひょ": "hyo",
	"みゃ": "mya", "みゅ": "myu", "みょ": "myo",
	"りゃ": "rya", "りゅ": "ryu", "りょ": "ryo",
	"ぎゃ": "gya", "ぎゅ": "gyu", "ぎょ": "gyo",
	"じゃ": "ja", "じゅ": "ju", "じょ": "jo", "じぇ": "je",
	"びゃ": "bya", "びゅ": "byu", "びょ": "byo",
	"ぴゃ": "pya", "ぴゅ": "pyu", "ぴょ": "pyo",
	"ふぁ": "fa", "ふぃ": "fi", "ふぇ": "fe", "ふぉ": "fo",
	"てぃ": "ti", "でぃ": "di", "うぃ": "wi", "うぇ": "we", "ゔぁ": "va",
}

var monographs = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "i", 'ゑ': "e", 'を': "o", 'ん': "n",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'だ': "da", 'ぢ': "ji", 'づ': "zu", 'で': "de", 'ど': "do",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o",
	'ゃ': "ya", 'ゅ': "yu", 'ょ': "yo", 'ゎ': "wa", 'ゔ': "vu",
}

const (
	smallTsu   = 'っ'
	longVowel  = 'ー'
	kanaOffset = 'ア' - 'あ'
)

// IsJapanese reports whether s contains kana or CJK ideographs.
func IsJapanese(s string) bool {
	for _, r := range s {
		if isJapaneseRune(r) {
			return true
		}
	}
	return false
}

func isJapaneseRune(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) || r == longVowel
}

func isKana(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana) || r == longVowel
}

// toHiragana folds katakana into hiragana so one table covers both.
func toHiragana(r rune) rune {
	if r >= 'ァ' && r <= 'ヶ' {
		return r - kanaOffset
	}
	return r
}

// Romanize converts the kana in Japanese lines to Hepburn romaji. Lines
// without Japanese text pass through unchanged; ideographs are kept as-is.
// The result is run through Format.
func Romanize(lyrics string) string {
	if strings.TrimSpace(lyrics) == "" {
		return lyrics
	}

	lines := strings.Split(norm.NFKC.String(lyrics), "\n")
	for i, line := range lines {
		if !IsJapanese(line) {
			continue
		}
		lines[i] = punctuation.Replace(romanizeLine(line))
	}
	return Format(strings.Join(lines, "\n"))
}

// romanizeLine converts kana runs and separates them from neighbouring
// ideograph runs with a space.
func romanizeLine(line string) string {
	var b strings.Builder
	runes := []rune(line)

	prevKind := 0 // 0 other, 1 kana, 2 ideograph
	for i := 0; i < len(runes); {
		r := runes[i]
		kind := 0
		switch {
		case isKana(r):
			kind = 1
		case unicode.Is(unicode.Han, r):
			kind = 2
		}
		if kind != 0 && prevKind != 0 && kind != prevKind {
			b.WriteByte(' ')
		}
		prevKind = kind

		if kind != 1 {
			b.WriteRune(r)
			i++
			continue
		}

		j := i
		for j < len(runes) && isKana(runes[j]) {
			j++
		}
		b.WriteString(kanaToRomaji(runes[i:j]))
		i = j
	}
	return b.String()
}

func kanaToRomaji(run []rune) string {
	kana := make([]rune, len(run))
	for i, r := range run {
		kana[i] = toHiragana(r)
	}

	var out strings.Builder
	geminate := false
	for i := 0; i < len(kana); {
		r := kana[i]

		if r == smallTsu {
			geminate = true
			i++
			continue
		}
		if r == longVowel {
			s := out.String()
			if n := len(s); n > 0 && strings.ContainsRune("aeiou", rune(s[n-1])) {
				out.WriteByte(s[n-1])
			}
			i++
			continue
		}

		syllable, width := "", 1
		if i+1 < len(kana) {
			if d, ok := digraphs[string(kana[i:i+2])]; ok {
				syllable, width = d, 2
			}
		}
		if syllable == "" {
			if m, ok := monographs[r]; ok {
				syllable = m
			} else {
				syllable = string(r)
			}
		}

		if geminate {
			switch {
			case strings.HasPrefix(syllable, "ch"):
				out.WriteByte('t')
			case syllable != "" && !strings.ContainsRune("aeiou", rune(syllable[0])):
				out.WriteByte(syllable[0])
			}
			geminate = false
		}

		out.WriteString(syllable)
		i += width
	}
	return out.String()
}
