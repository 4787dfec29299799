package usecase

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Entity keys as produced by the classifier.
const (
	entityPartySize = "number"
	entityDatetime  = "datetime"
)

const timeDisplayFormat = "January 2 at 03:04 PM"

// errMalformedTime marks a date/time expression the extractor could not
// parse. Callers recover by re-prompting; it never terminates a turn.
var errMalformedTime = errors.New("usecase: malformed time expression")

// timeNow is split out so tests can pin the reference date.
var timeNow = time.Now

// extractPartySize reads the first value under the number entity key as a
// positive integer. Absent or non-numeric values yield no result, never an
// error.
func extractPartySize(entities map[string][]string) (int, bool) {
	vals := entities[entityPartySize]
	if len(vals) == 0 {
		return 0, false
	}
	return parsePartySize(vals[0])
}

// parsePartySize finds the first positive integer token in free text, so
// "4" and "a table for 4 people" both work.
func parsePartySize(text string) (int, bool) {
	for _, field := range strings.Fields(text) {
		n, err := strconv.Atoi(strings.Trim(field, ".,!?"))
		if err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}

// extractTime reads the first datetime expression and normalizes it. An
// absent entity yields an empty string with no error; a present but
// unparseable one yields errMalformedTime.
func extractTime(entities map[string][]string) (string, error) {
	vals := entities[entityDatetime]
	if len(vals) == 0 {
		return "", nil
	}
	return normalizeTimeExpression(vals[0])
}

// normalizeTimeExpression renders a free-form date/time expression in the
// canonical "January 2 at 03:04 PM" display form. Expressions without a
// clock component default to midnight.
func normalizeTimeExpression(raw string) (string, error) {
	parsed, err := parseTimeExpression(raw, timeNow())
	if err != nil {
		return "", err
	}
	return parsed.Format(timeDisplayFormat), nil
}

// Layouts tried in order. Textual matching in time.Parse is case-insensitive
// for month names but not for AM/PM markers, so the expression is uppercased
// first and only the uppercase marker appears here.
var (
	dateOnlyLayouts = []string{
		"2006-01-02",
		"January 2",
		"January 2 2006",
	}
	dateTimeLayouts = []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"January 2 AT 3:04 PM",
		"January 2 AT 3PM",
		"January 2 3:04 PM",
	}
	clockLayouts = []string{
		"3:04 PM",
		"3:04PM",
		"3 PM",
		"3PM",
		"15:04",
		"15",
	}
)

func parseTimeExpression(raw string, now time.Time) (time.Time, error) {
	expr := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if expr == "" {
		return time.Time{}, errMalformedTime
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			return withDefaults(t, now), nil
		}
	}
	for _, layout := range dateOnlyLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			// No clock component: midnight.
			return withDefaults(t, now), nil
		}
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			return time.Date(now.Year(), now.Month(), now.Day(),
				t.Hour(), t.Minute(), 0, 0, now.Location()), nil
		}
	}
	return time.Time{}, errMalformedTime
}

// withDefaults fills the year in for layouts that omit it.
func withDefaults(t, now time.Time) time.Time {
	year := t.Year()
	if year == 0 {
		year = now.Year()
	}
	return time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
}
