// Package timeparser deterministically parses the mixed Chinese/English
// date and time expressions course-management utterances use, without any
// LLM involvement — the rest of the pipeline depends on this being fast
// and side-effect free.
package timeparser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the zone every display-facing computation assumes
// unless the caller supplies another one.
const DefaultTimezone = "Asia/Taipei"

// ErrEmptyInput is returned when the caller passes nil/empty text — the
// one case this package treats as a hard error rather than a parse miss.
var ErrEmptyInput = errors.New("timeparser: empty input")

// TimeComponent is the hour/minute pair parseTimeComponent extracts.
// Hour is nil when no hour token was found in the text at all.
type TimeComponent struct {
	Hour   *int
	Minute int
}

// TimeInfo is the bundle SlotExtractor attaches to a recognized time
// expression: a display string, a storage-form date, the ISO instant and
// its unix timestamp.
type TimeInfo struct {
	Display   string
	Date      string
	Raw       string
	Timestamp int64
}

var relativeDateTokens = map[string]int{
	"今天": 0, "今日": 0,
	"明天": 1, "明日": 1,
	"後天": 2,
	"昨天": -1, "昨日": -1,
	"前天": -2,
}

// MapRelativeDate returns the day offset for a relative-date token out of
// the closed set {今天/今日, 明天/明日, 後天, 昨天/昨日, 前天}. Unknown tokens
// map to 0, matching the spec's documented default.
func MapRelativeDate(token string) int {
	if offset, ok := relativeDateTokens[token]; ok {
		return offset
	}
	return 0
}

var chineseNumerals = map[rune]int{
	'一': 1, '二': 2, '三': 3, '四': 4, '五': 5, '六': 6,
	'七': 7, '八': 8, '九': 9, '十': 10,
}

// parseChineseHour turns a run of Chinese numeral runes (e.g. 十二, 三) into
// an integer. Covers 1-10 as single numerals and 11-29 via the "十X"/"二十X"
// compositions; Parse rejects hours above 23.
func parseChineseHour(s string) (int, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}
	if len(runes) == 1 {
		v, ok := chineseNumerals[runes[0]]
		return v, ok
	}
	// "十X" => 10+X ; "二十" => 20 ; "二十X" => 20+X
	if runes[0] == '十' {
		if len(runes) == 1 {
			return 10, true
		}
		rest, ok := chineseNumerals[runes[1]]
		if !ok {
			return 0, false
		}
		return 10 + rest, true
	}
	if runes[0] == '二' && len(runes) >= 2 && runes[1] == '十' {
		if len(runes) == 2 {
			return 20, true
		}
		rest, ok := chineseNumerals[runes[2]]
		if !ok {
			return 0, false
		}
		return 20 + rest, true
	}
	return 0, false
}

var (
	hhmmRe        = regexp.MustCompile(`(\d{1,2})[:：](\d{1,2})`)
	enAMPMRe      = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	chineseHourRe = regexp.MustCompile(`([一二三四五六七八九十]{1,3}|\d{1,2})點(半)?(?:(\d{1,2})分)?`)
	meridianRe    = regexp.MustCompile(`(上午|中午|下午|晚上)`)
)

// parseTimeComponent extracts an {hour, minute} pair from free text. It
// supports HH:MM / H:M, English "h(:mm) am/pm" (12 AM -> 0), Chinese
// numerals with 點/半, and 上午/中午/下午/晚上 meridian modifiers (下午 and
// 晚上 add 12 when the parsed hour is below 12; 中午12 stays 12; 12 AM -> 0).
func ParseTimeComponent(text string) (TimeComponent, bool) {
	meridian := ""
	if m := meridianRe.FindStringSubmatch(text); m != nil {
		meridian = m[1]
	}

	if m := hhmmRe.FindStringSubmatch(text); m != nil {
		h, errH := strconv.Atoi(m[1])
		mm, errM := strconv.Atoi(m[2])
		if errH == nil && errM == nil && h <= 23 && mm <= 59 {
			h = applyMeridian(h, meridian)
			return TimeComponent{Hour: &h, Minute: mm}, true
		}
	}

	if m := enAMPMRe.FindStringSubmatch(text); m != nil {
		h, err := strconv.Atoi(m[1])
		if err == nil {
			mm := 0
			if m[2] != "" {
				if parsed, err2 := strconv.Atoi(m[2]); err2 == nil {
					mm = parsed
				}
			}
			ampm := strings.ToLower(m[3])
			if ampm == "am" && h == 12 {
				h = 0
			} else if ampm == "pm" && h != 12 {
				h += 12
			}
			return TimeComponent{Hour: &h, Minute: mm}, true
		}
	}

	if m := chineseHourRe.FindStringSubmatch(text); m != nil {
		var h int
		var ok bool
		if n, err := strconv.Atoi(m[1]); err == nil {
			h, ok = n, true
		} else {
			h, ok = parseChineseHour(m[1])
		}
		if ok {
			mm := 0
			if m[2] == "半" {
				mm = 30
			} else if m[3] != "" {
				if parsed, err := strconv.Atoi(m[3]); err == nil {
					mm = parsed
				}
			}
			h = applyMeridian(h, meridian)
			return TimeComponent{Hour: &h, Minute: mm}, true
		}
	}

	if meridian != "" {
		// Meridian word with no explicit hour: not enough information.
		return TimeComponent{}, false
	}

	return TimeComponent{}, false
}

func applyMeridian(hour int, meridian string) int {
	switch meridian {
	case "下午", "晚上":
		if hour < 12 {
			hour += 12
		}
	case "中午":
		if hour != 12 {
			hour += 12
		}
	case "上午":
		if hour == 12 {
			hour = 0
		}
	}
	return hour
}

// Parse resolves free text into a concrete time.Time anchored at
// referenceTime in the given timezone (defaults to Asia/Taipei). It
// combines a relative-date token (if any) with a parsed time-of-day
// component. Returns (nil, nil) when nothing recognizable is present —
// that is a parse miss, not an error. An error is returned only for
// structurally invalid input (empty text, or an hour outside 0-23).
func Parse(text string, referenceTime time.Time, timezone string) (*time.Time, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}
	ref := referenceTime.In(loc)

	dayOffset := 0
	for token, offset := range relativeDateTokens {
		if strings.Contains(text, token) {
			dayOffset = offset
			break
		}
	}

	comp, ok := ParseTimeComponent(text)
	if !ok && dayOffset == 0 && !containsAnyRelativeToken(text) {
		return nil, nil
	}

	hour := 0
	minute := 0
	if comp.Hour != nil {
		if *comp.Hour < 0 || *comp.Hour > 23 {
			return nil, errors.New("timeparser: hour out of range")
		}
		hour = *comp.Hour
		minute = comp.Minute
	}

	result := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, loc).
		AddDate(0, 0, dayOffset)
	return &result, nil
}

func containsAnyRelativeToken(text string) bool {
	for token := range relativeDateTokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// FormatForDisplay renders date in the user's timezone as "MM/DD h:MM AM/PM".
func FormatForDisplay(date time.Time) string {
	return date.Format("01/02 3:04 PM")
}

// FormatForStorage renders date as the storage-form "YYYY-MM-DD".
func FormatForStorage(date time.Time) string {
	return date.Format("2006-01-02")
}

// CreateTimeInfo builds the {display, date, raw, timestamp} bundle
// attached to slots. The round-trip property that matters:
// CreateTimeInfo(x).Raw == x.Format(time.RFC3339) and Date matches the
// YYYY-MM-DD storage form.
func CreateTimeInfo(raw time.Time) TimeInfo {
	return TimeInfo{
		Display:   FormatForDisplay(raw),
		Date:      FormatForStorage(raw),
		Raw:       raw.Format(time.RFC3339),
		Timestamp: raw.Unix(),
	}
}
