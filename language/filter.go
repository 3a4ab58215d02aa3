// Package language classifies review text by script.
package language

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the memo when no size is given.
const DefaultCacheSize = 65536

// Alphabet is the set of letters that identify a target language.
type Alphabet struct {
	Name    string
	letters map[rune]struct{}
}

// NewAlphabet builds an alphabet from the runes in letters.
func NewAlphabet(name, letters string) Alphabet {
	set := make(map[rune]struct{}, len(letters))
	for _, r := range letters {
		set[r] = struct{}{}
	}
	return Alphabet{Name: name, letters: set}
}

// Contains reports whether r belongs to the alphabet.
func (a Alphabet) Contains(r rune) bool {
	_, ok := a.letters[r]
	return ok
}

// Russian matches а-я, А-Я, ё and Ё.
var Russian = NewAlphabet("ru",
	"абвгдежзийклмнопрстуфхцчшщъыьэюя"+
		"АБВГДЕЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯ"+
		"ёЁ")

// Ukrainian adds і, ї, є and ґ to the shared Cyrillic letters.
var Ukrainian = NewAlphabet("uk",
	"абвгґдеєжзиіїйклмнопрстуфхцчшщьюя"+
		"АБВГҐДЕЄЖЗИІЇЙКЛМНОПРСТУФХЦЧШЩЬЮЯ")

var alphabets = map[string]Alphabet{
	Russian.Name:   Russian,
	Ukrainian.Name: Ukrainian,
}

// Lookup returns the alphabet registered for a language code.
func Lookup(code string) (Alphabet, error) {
	a, ok := alphabets[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Alphabet{}, fmt.Errorf("unsupported language %q", code)
	}
	return a, nil
}

// Filter reports whether text is written in the target alphabet. Results are
// memoized by a hash of the text in a bounded LRU. Safe for concurrent use.
type Filter struct {
	alphabet Alphabet
	memo     *lru.Cache[uint64, bool]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewFilter creates a filter for alphabet with a memo of cacheSize entries.
func NewFilter(alphabet Alphabet, cacheSize int) (*Filter, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	memo, err := lru.New[uint64, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create language memo: %w", err)
	}
	return &Filter{alphabet: alphabet, memo: memo}, nil
}

// Language returns the code of the target alphabet.
func (f *Filter) Language() string {
	return f.alphabet.Name
}

// IsTarget reports whether text contains at least one letter of the target
// alphabet. Empty text is never a match.
func (f *Filter) IsTarget(text string) bool {
	if text == "" {
		return false
	}

	key := xxhash.Sum64String(text)
	if match, ok := f.memo.Get(key); ok {
		f.hits.Add(1)
		return match
	}
	f.misses.Add(1)

	match := strings.ContainsFunc(text, f.alphabet.Contains)
	f.memo.Add(key, match)
	return match
}

// Stats returns memo hits and misses since the filter was created.
func (f *Filter) Stats() (hits, misses int64) {
	return f.hits.Load(), f.misses.Load()
}

// Len returns the number of memoized classifications.
func (f *Filter) Len() int {
	return f.memo.Len()
}
