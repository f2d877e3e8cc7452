package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/chainweave/forge/nlp"
)

// cronParser validates every expression this file produces. The seconds
// field is optional so both 5-field and 6-field forms pass.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

var (
	everyNUnit = regexp.MustCompile(`every\s+(\d+)\s+([a-z]+)`)
	dayAtClock = regexp.MustCompile(`every\s*day\s+at\s+(\d{1,2})\s*(am|pm)`)
	weekdayAt  = regexp.MustCompile(`\b(?:every|each|on)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?(?:\s+at\s+(\d{1,2})\s*(am|pm))?`)
)

var weekdayNumbers = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// ExtractSchedule finds a cron expression in normalized prompt text. Three
// phases run in order: exact `every N unit`, the same with up to two
// spelling edits on the unit word, then shorthand forms (hourly, daily,
// weekly, clock times, weekday names). Second-granular intervals yield a
// 6-field expression, everything else 5-field. Returns "" when nothing
// parses or the produced expression fails cron validation.
func ExtractSchedule(text string) string {
	if m := everyNUnit.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			if expr := intervalCron(n, canonicalUnit(m[2])); expr != "" {
				return validated(expr)
			}
		}
	}
	if expr := shorthandCron(text); expr != "" {
		return validated(expr)
	}
	return ""
}

// canonicalUnit resolves a unit word to second/minute/hour/day, first by
// equality and then within two spelling edits, so "every 5 minuts" still
// schedules.
func canonicalUnit(word string) string {
	word = strings.TrimSuffix(word, "s")
	units := []string{"second", "minute", "hour", "day"}
	for _, u := range units {
		if word == u {
			return u
		}
	}
	for _, u := range units {
		if nlp.Distance(word, u) <= 2 {
			return u
		}
	}
	return ""
}

func intervalCron(n int, unit string) string {
	switch unit {
	case "second":
		return fmt.Sprintf("*/%d * * * * *", n)
	case "minute":
		return fmt.Sprintf("*/%d * * * *", n)
	case "hour":
		return fmt.Sprintf("0 */%d * * *", n)
	case "day":
		return fmt.Sprintf("0 0 */%d * *", n)
	}
	return ""
}

// shorthandCron handles the fixed shorthand grammar. Clock-time forms are
// checked before the bare "every day" rule so "every day at 9am" keeps its
// hour.
func shorthandCron(text string) string {
	switch {
	case strings.Contains(text, "hourly") || strings.Contains(text, "every hour"):
		return "0 * * * *"
	case strings.Contains(text, "weekly") || strings.Contains(text, "every week"):
		return "0 0 * * 0"
	}

	if m := dayAtClock.FindStringSubmatch(text); m != nil {
		if hour := clockHour(m[1], m[2]); hour >= 0 {
			return fmt.Sprintf("0 %d * * *", hour)
		}
	}
	if m := weekdayAt.FindStringSubmatch(text); m != nil {
		day := weekdayNumbers[m[1]]
		hour := 0
		if m[2] != "" {
			if h := clockHour(m[2], m[3]); h >= 0 {
				hour = h
			}
		}
		return fmt.Sprintf("0 %d * * %d", hour, day)
	}

	switch {
	case strings.Contains(text, "daily") || strings.Contains(text, "every day") || strings.Contains(text, "each day"):
		return "0 0 * * *"
	case strings.Contains(text, "every minute"):
		return "* * * * *"
	}
	return ""
}

// clockHour converts a 12-hour clock reference into 0..23, or -1 when out
// of range.
func clockHour(h, meridiem string) int {
	n, err := strconv.Atoi(h)
	if err != nil || n < 1 || n > 12 {
		return -1
	}
	if meridiem == "am" {
		if n == 12 {
			return 0
		}
		return n
	}
	if n == 12 {
		return 12
	}
	return n + 12
}

func validated(expr string) string {
	if _, err := cronParser.Parse(expr); err != nil {
		return ""
	}
	return expr
}

// ValidCron reports whether expr is an acceptable 5-field or 6-field cron
// expression.
func ValidCron(expr string) bool {
	_, err := cronParser.Parse(expr)
	return err == nil
}
