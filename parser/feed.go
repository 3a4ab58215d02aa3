// Package parser decodes the customer review feed into review records.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ErrMissingField is wrapped by ParseError when an entry lacks a required field.
var ErrMissingField = errors.New("missing required field")

// ParseError reports why a feed entry could not become a review.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Errorf("parse entry: %w", e.Err).Error()
	}
	return fmt.Errorf("parse entry field %q: %w", e.Field, e.Err).Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// label is the {"label": value} wrapper the feed uses for every scalar.
type label struct {
	Label *string `json:"label"`
}

type entry struct {
	ID     *label `json:"id"`
	Author *struct {
		Name *label `json:"name"`
	} `json:"author"`
	Rating  *label `json:"im:rating"`
	Title   *label `json:"title"`
	Content *label `json:"content"`
	Updated *label `json:"updated"`
	Version *label `json:"im:version"`
}

type envelope struct {
	Feed struct {
		Entry entries `json:"entry"`
	} `json:"feed"`
}

// entries accepts both a list and a lone object; the feed collapses
// single-entry pages to an object.
type entries []json.RawMessage

func (e *entries) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*e = nil
		return nil
	case trimmed[0] == '{':
		*e = entries{json.RawMessage(append([]byte(nil), trimmed...))}
		return nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*e = list
	return nil
}

// DecodeFeed returns the raw entries of one feed page in feed order.
// An absent or empty entry list yields no entries and no error.
func DecodeFeed(body []byte) ([]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return env.Feed.Entry, nil
}

// ParseEntry maps one raw feed entry onto a Review for region.
func ParseEntry(raw json.RawMessage, region string) (models.Review, error) {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.Review{}, &ParseError{Err: err}
	}

	var author *label
	if e.Author != nil {
		author = e.Author.Name
	}

	var review models.Review
	var rating string
	for _, f := range []struct {
		name string
		src  *label
		dst  *string
	}{
		{"id", e.ID, &review.ID},
		{"author.name", author, &review.Author},
		{"im:rating", e.Rating, &rating},
		{"title", e.Title, &review.Title},
		{"content", e.Content, &review.Text},
		{"updated", e.Updated, &review.Date},
		{"im:version", e.Version, &review.Version},
	} {
		if f.src == nil || f.src.Label == nil {
			return models.Review{}, &ParseError{Field: f.name, Err: ErrMissingField}
		}
		*f.dst = *f.src.Label
	}

	value, err := strconv.Atoi(strings.TrimSpace(rating))
	if err != nil {
		return models.Review{}, &ParseError{Field: "im:rating", Err: err}
	}
	review.Rating = value
	review.Region = region
	return review, nil
}
