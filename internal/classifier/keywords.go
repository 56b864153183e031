package classifier

// Class is the generic response bucket used when no intent matched.
type Class string

const (
	ClassGreeting Class = "greeting"
	ClassThanks   Class = "thanks"
	ClassFarewell Class = "farewell"
	ClassDefault  Class = "default"
)

type keywordClass struct {
	class   Class
	phrases [][]string
}

// keywordClasses are checked in order; the first class with a phrase present
// as whole words wins.
var keywordClasses = []keywordClass{
	{ClassGreeting, phrases("hello", "hi", "hey", "good morning", "good afternoon", "good evening")},
	{ClassThanks, phrases("thank", "thanks", "thank you")},
	{ClassFarewell, phrases("bye", "goodbye", "see you", "exit")},
}

// KeywordResponses are the canned replies for each generic class.
var KeywordResponses = map[Class][]string{
	ClassGreeting: {"Hello! How can I help you today?", "Hi there!", "Good to see you!"},
	ClassThanks:   {"You're welcome!", "Happy to help!", "No problem!"},
	ClassFarewell: {"Goodbye!", "See you later!", "Take care!"},
	ClassDefault: {
		"I'm not sure I understand. Could you rephrase that?",
		"I'm in offline mode with limited capabilities.",
		"Try asking me about the time, date, or opening applications.",
	},
}

func phrases(ps ...string) [][]string {
	out := make([][]string, len(ps))
	for i, p := range ps {
		out[i] = words(p)
	}
	return out
}

// MatchKeyword returns the generic class for text, ClassDefault when no
// keyword phrase occurs.
func MatchKeyword(text string) Class {
	ws := words(text)
	for _, kc := range keywordClasses {
		for _, p := range kc.phrases {
			if containsPhrase(ws, p) {
				return kc.class
			}
		}
	}
	return ClassDefault
}

func containsPhrase(ws, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(ws) {
		return false
	}
outer:
	for i := 0; i+len(phrase) <= len(ws); i++ {
		for j, p := range phrase {
			if ws[i+j] != p {
				continue outer
			}
		}
		return true
	}
	return false
}
