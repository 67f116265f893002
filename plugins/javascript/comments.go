package javascript

import (
	"context"
	"strings"
)

// CommentsParserName is the parser registered for JavaScript comments.
const CommentsParserName = "javascript-comments"

// Comment is a comment found in a JavaScript source file.
type Comment struct {
	// Text is the comment body without its delimiters.
	Text string `json:"text" yaml:"text"`

	// Line is the 1-based line the comment starts on.
	Line int `json:"line" yaml:"line"`

	// Block is true for /* */ comments.
	Block bool `json:"block" yaml:"block"`
}

// ParseComments is an engine.ParserFunc returning []Comment.
func ParseComments(_ context.Context, _ string, source []byte) (interface{}, error) {
	return ScanComments(string(source)), nil
}

// ScanComments returns the comments of src in order. String and template
// literals are skipped so comment markers inside them are not reported.
// Regular expression literals are not recognized.
func ScanComments(src string) []Comment {
	var comments []Comment
	line := 1

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\n':
			line++

		case c == '\'' || c == '"' || c == '`':
			i, line = skipString(src, i, line)

		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			comments = append(comments, Comment{Text: strings.TrimSpace(src[i+2 : i+end]), Line: line})
			i += end - 1

		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			start := line
			end := strings.Index(src[i+2:], "*/")
			var body string
			if end < 0 {
				body = src[i+2:]
				i = len(src)
			} else {
				body = src[i+2 : i+2+end]
				i += end + 3
			}
			line += strings.Count(body, "\n")
			comments = append(comments, Comment{Text: strings.TrimSpace(body), Line: start, Block: true})
		}
	}

	return comments
}

// skipString advances past the literal opened at src[i] and returns the
// index of its closing quote and the updated line.
func skipString(src string, i, line int) (int, int) {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			if j+1 < len(src) && src[j+1] == '\n' {
				line++
			}
			j++
		case '\n':
			// Unterminated quoted strings end at the line break.
			if quote != '`' {
				return j - 1, line
			}
			line++
		case quote:
			return j, line
		}
	}
	return len(src), line
}
