package transcript

import (
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/ekjot25/Audio-Analysis/logging"
)

// Utterance is one sentence attributed to the speaker who said most of its
// matched words.
type Utterance struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
}

// AlignmentGap is a sentence none of whose words matched a token.
type AlignmentGap struct {
	Index    int    `json:"index"`
	Sentence string `json:"sentence"`
}

// Result is the outcome of one alignment run. Cursor is the number of
// tokens consumed.
type Result struct {
	Utterances []Utterance    `json:"utterances"`
	Gaps       []AlignmentGap `json:"gaps,omitempty"`
	Cursor     int            `json:"cursor"`
	Tokens     int            `json:"tokens"`
}

// SplitSentences splits text after every '.', '?' or '!' that is followed by
// whitespace. The punctuation stays with its sentence; blank sentences are
// dropped.
func SplitSentences(text string) []string {
	var out []string
	emit := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	start := 0
	var prev rune
	for i, r := range text {
		if unicode.IsSpace(r) && (prev == '.' || prev == '?' || prev == '!') {
			emit(text[start:i])
			start = i
		}
		prev = r
	}
	emit(text[start:])
	return out
}

// Normalize lower-cases word and keeps only ASCII letters and digits.
func Normalize(word string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(word) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Diarize splits the transcript text into sentences and aligns them.
func Diarize(t *Transcript, log logrus.FieldLogger) Result {
	return Align(SplitSentences(t.Text), t.Tokens, log)
}

// Align walks the sentences in order with a single token cursor that never
// moves backwards. A sentence word that does not match the token under the
// cursor is skipped; a token is only consumed by a matching word. Once a
// token is never matched, no later token is reached either.
//
// Each sentence with at least one match becomes an Utterance spoken by the
// speaker with the most matched words, ties going to the speaker seen first.
// Sentences with no match are reported as gaps.
func Align(sentences []string, tokens []Token, log logrus.FieldLogger) Result {
	a := aligner{tokens: tokens, log: logging.OrDiscard(log)}
	res := Result{Tokens: len(tokens)}
	for i, s := range sentences {
		u, ok := a.next(s)
		if !ok {
			res.Gaps = append(res.Gaps, AlignmentGap{Index: i, Sentence: s})
			a.log.WithFields(logrus.Fields{
				"sentence": i,
				"cursor":   a.cursor,
			}).Warn("no tokens matched sentence")
			continue
		}
		res.Utterances = append(res.Utterances, u)
	}
	res.Cursor = a.cursor

	a.log.WithFields(logrus.Fields{
		"sentences":  len(sentences),
		"utterances": len(res.Utterances),
		"gaps":       len(res.Gaps),
		"consumed":   res.Cursor,
		"tokens":     len(tokens),
	}).Debug("alignment finished")
	return res
}

type aligner struct {
	tokens []Token
	cursor int
	log    logrus.FieldLogger
}

// next aligns one sentence, advancing the cursor past every matched token.
func (a *aligner) next(sentence string) (Utterance, bool) {
	if a.cursor >= len(a.tokens) {
		return Utterance{}, false
	}
	start := a.tokens[a.cursor].Start

	var (
		end     float64
		matched int
		counts  = map[string]int{}
		order   []string
	)
	for _, w := range strings.Fields(sentence) {
		if a.cursor >= len(a.tokens) {
			break
		}
		tok := a.tokens[a.cursor]
		if Normalize(w) != Normalize(tok.Content) {
			continue
		}
		if _, seen := counts[tok.Speaker]; !seen {
			order = append(order, tok.Speaker)
		}
		counts[tok.Speaker]++
		end = tok.End
		matched++
		a.cursor++
	}
	if matched == 0 {
		return Utterance{}, false
	}
	return Utterance{Speaker: dominant(counts, order), Text: sentence, Start: start, End: end}, true
}

func dominant(counts map[string]int, order []string) string {
	best := order[0]
	for _, s := range order[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best
}
