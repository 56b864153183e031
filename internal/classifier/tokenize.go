package classifier

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are dropped before n-grams are built. The list covers question
// scaffolding ("what is it") and particles ("off", "down") so that intent
// vocabulary carries the signal.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a about after all also am an and any are as at be been before being but by
		can could did do does doing down for from had has have having he her here
		hers him his how if in into is it its just me might more most must my no
		nor not now of off on once only or other our out over own please same she
		should so some such than that the their them then there these they this
		those through to too under until up us very was we were what when where
		which while who whom why will with would you your yours`) {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases text and returns alphanumeric tokens of length two or
// more with stop words removed.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if len(tok) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Features returns word n-grams of size 1..ngramMax over the tokenized text.
func Features(text string, ngramMax int) []string {
	toks := Tokenize(text)
	if ngramMax < 1 {
		ngramMax = 1
	}

	feats := make([]string, 0, len(toks)*ngramMax)
	for n := 1; n <= ngramMax; n++ {
		for i := 0; i+n <= len(toks); i++ {
			feats = append(feats, strings.Join(toks[i:i+n], " "))
		}
	}
	return feats
}

// words splits text into lower-case words without stop word filtering, for
// whole-word keyword matching.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	})
}
