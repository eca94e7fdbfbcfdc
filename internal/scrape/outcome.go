// Package scrape holds the outcome of fetching a single URL.
//
// An Outcome is either a Success carrying the page text and its metrics or a
// Failure carrying a reason; a value can never be both.
package scrape

import (
	"strings"
	"unicode/utf8"
)

// FailureKind classifies why a URL produced no content.
type FailureKind string

const (
	KindInvalidURL       FailureKind = "invalid_url"
	KindRobotsDisallowed FailureKind = "robots_disallowed"
	KindNetwork          FailureKind = "network"
	KindHTTPStatus       FailureKind = "http_status"
	KindParse            FailureKind = "parse"
	KindEmptyContent     FailureKind = "empty_content"
	KindInterrupted      FailureKind = "interrupted"
)

// Outcome is implemented by Success and Failure only.
type Outcome interface {
	outcome()
	// OK reports whether the outcome is a Success.
	OK() bool
}

// Metrics are the text counts derived from scraped content.
type Metrics struct {
	WordCount int `json:"word_count"`
	CharCount int `json:"char_count"`
	LineCount int `json:"line_count"`
}

// Success is a fetched page reduced to text.
type Success struct {
	Title   string
	Content string
	Metrics Metrics
}

// Failure is a URL that produced no content.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (Success) outcome() {}
func (Failure) outcome() {}

func (Success) OK() bool { return true }
func (Failure) OK() bool { return false }

// NewSuccess builds a Success with metrics computed from content.
func NewSuccess(title, content string) Success {
	return Success{Title: title, Content: content, Metrics: ComputeMetrics(content)}
}

// Fail builds a Failure.
func Fail(kind FailureKind, message string) Failure {
	return Failure{Kind: kind, Message: message}
}

// Error renders the failure as "<kind>: <message>".
func (f Failure) Error() string {
	if f.Message == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Message
}

// ComputeMetrics counts whitespace separated words, characters (runes) and
// lines of content.
func ComputeMetrics(content string) Metrics {
	if content == "" {
		return Metrics{}
	}

	lines := strings.Count(content, "\n") + 1
	if strings.HasSuffix(content, "\n") {
		lines--
	}

	return Metrics{
		WordCount: len(strings.Fields(content)),
		CharCount: utf8.RuneCountInString(content),
		LineCount: lines,
	}
}
