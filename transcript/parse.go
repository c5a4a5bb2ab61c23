// Package transcript attributes the sentences of a time-coded transcript to
// speakers by aligning sentence words against the recognised tokens.
package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Token is one recognised word with its timing and speaker.
type Token struct {
	Content string  `json:"content"`
	Start   float64 `json:"start_time"`
	End     float64 `json:"end_time"`
	Speaker string  `json:"speaker_label"`
}

// Transcript is the raw text and the pronunciation tokens of one recording.
type Transcript struct {
	Text   string
	Tokens []Token
}

// InputFormatError reports a transcript document that is missing required
// data. Item is the index into results.items, or -1 for document-level
// problems.
type InputFormatError struct {
	Item  int
	Field string
	Err   error
}

func (e *InputFormatError) Error() string {
	if e.Item < 0 {
		return fmt.Sprintf("transcript: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("transcript: item %d: %s: %v", e.Item, e.Field, e.Err)
}

func (e *InputFormatError) Unwrap() error { return e.Err }

var errMissing = errors.New("missing")

type document struct {
	Results *struct {
		Transcripts []struct {
			Transcript *string `json:"transcript"`
		} `json:"transcripts"`
		Items []item `json:"items"`
	} `json:"results"`
}

type item struct {
	Type         string `json:"type"`
	Alternatives []struct {
		Content *string `json:"content"`
	} `json:"alternatives"`
	StartTime    json.RawMessage `json:"start_time"`
	EndTime      json.RawMessage `json:"end_time"`
	SpeakerLabel json.RawMessage `json:"speaker_label"`
}

// Parse reads a transcription result document. Only pronunciation items
// become tokens; punctuation items are still part of the transcript text.
// Times may be decimal strings or numbers and speaker labels strings or
// integers. Any missing field fails the whole document.
func Parse(r io.Reader) (*Transcript, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &InputFormatError{Item: -1, Field: "document", Err: err}
	}
	if doc.Results == nil {
		return nil, &InputFormatError{Item: -1, Field: "results", Err: errMissing}
	}
	if len(doc.Results.Transcripts) == 0 || doc.Results.Transcripts[0].Transcript == nil {
		return nil, &InputFormatError{Item: -1, Field: "results.transcripts[0].transcript", Err: errMissing}
	}
	if doc.Results.Items == nil {
		return nil, &InputFormatError{Item: -1, Field: "results.items", Err: errMissing}
	}

	t := &Transcript{Text: *doc.Results.Transcripts[0].Transcript}
	for i, it := range doc.Results.Items {
		if it.Type == "" {
			return nil, &InputFormatError{Item: i, Field: "type", Err: errMissing}
		}
		if it.Type != "pronunciation" {
			continue
		}
		tok, err := it.token(i)
		if err != nil {
			return nil, err
		}
		t.Tokens = append(t.Tokens, tok)
	}
	return t, nil
}

func (it item) token(i int) (Token, error) {
	if len(it.Alternatives) == 0 || it.Alternatives[0].Content == nil {
		return Token{}, &InputFormatError{Item: i, Field: "alternatives[0].content", Err: errMissing}
	}
	start, err := seconds(it.StartTime)
	if err != nil {
		return Token{}, &InputFormatError{Item: i, Field: "start_time", Err: err}
	}
	end, err := seconds(it.EndTime)
	if err != nil {
		return Token{}, &InputFormatError{Item: i, Field: "end_time", Err: err}
	}
	if end < start {
		return Token{}, &InputFormatError{Item: i, Field: "end_time", Err: fmt.Errorf("%v is before start %v", end, start)}
	}
	speaker, err := label(it.SpeakerLabel)
	if err != nil {
		return Token{}, &InputFormatError{Item: i, Field: "speaker_label", Err: err}
	}
	return Token{Content: *it.Alternatives[0].Content, Start: start, End: end, Speaker: speaker}, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func seconds(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, errMissing
	}
	var v float64
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, err
		}
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid time %v", v)
	}
	return v, nil
}

func label(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", errMissing
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("want string or integer, got %s", raw)
	}
	if _, err := n.Int64(); err != nil {
		return "", fmt.Errorf("want string or integer, got %s", raw)
	}
	return n.String(), nil
}
