// Package tokenizer turns text into normalised search terms. The same
// tokenizer is used when indexing a book body and when parsing a query, so a
// query term matches exactly the index terms produced from the same word.
//
// A term is a maximal run of letters, digits and combining marks. Each term
// is composed to NFC and Unicode case folded. There is no stemming and no
// stop word removal.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Token is a normalised term and its ordinal position among the terms of
// the text.
type Token struct {
	Term     string
	Position int
}

// Tokens returns the terms of text in document order. The sequence is lazy
// and may be ranged over more than once.
func Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		// Casers are stateful; each iteration gets its own.
		folder := cases.Fold()
		pos := 0
		start := -1
		for i, r := range text {
			if isTermRune(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(Token{Term: normalize(folder, text[start:i]), Position: pos}) {
					return
				}
				pos++
				start = -1
			}
		}
		if start >= 0 {
			yield(Token{Term: normalize(folder, text[start:]), Position: pos})
		}
	}
}

// Terms is Tokens without positions.
func Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for tok := range Tokens(text) {
			if !yield(tok.Term) {
				return
			}
		}
	}
}

// Tokenize collects Tokens into a slice.
func Tokenize(text string) []Token {
	var tokens []Token
	for tok := range Tokens(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

func isTermRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.M, r)
}

func normalize(folder cases.Caser, word string) string {
	if isASCII(word) {
		return strings.ToLower(word)
	}
	folder.Reset()
	return folder.String(norm.NFC.String(word))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
