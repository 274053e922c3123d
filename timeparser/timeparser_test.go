package timeparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRelativeDate(t *testing.T) {
	cases := map[string]int{
		"今天": 0, "今日": 0, "明天": 1, "明日": 1, "後天": 2,
		"昨天": -1, "昨日": -1, "前天": -2, "完全不相關": 0,
	}
	for token, want := range cases {
		assert.Equal(t, want, MapRelativeDate(token), "MapRelativeDate(%q)", token)
	}
}

func TestParseTimeComponent(t *testing.T) {
	cases := []struct {
		text     string
		wantHour int
		wantMin  int
		wantOK   bool
	}{
		{"下午2點", 14, 0, true},
		{"下午2點半", 14, 30, true},
		{"上午十二點", 0, 0, true},
		{"中午12點", 12, 0, true},
		{"晚上八點", 20, 0, true},
		{"14:30", 14, 30, true},
		{"2:5", 2, 5, true},
		{"12 AM", 0, 0, true},
		{"3pm", 15, 0, true},
		{"沒有時間", 0, 0, false},
	}
	for _, c := range cases {
		got, ok := ParseTimeComponent(c.text)
		require.Equal(t, c.wantOK, ok, "ParseTimeComponent(%q)", c.text)
		if !ok {
			continue
		}
		require.NotNil(t, got.Hour, "ParseTimeComponent(%q)", c.text)
		assert.Equal(t, c.wantHour, *got.Hour, "ParseTimeComponent(%q) hour", c.text)
		assert.Equal(t, c.wantMin, got.Minute, "ParseTimeComponent(%q) minute", c.text)
	}
}

func TestParseInvalidHour(t *testing.T) {
	ref := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)
	_, err := Parse("小明明天25點上數學課", ref, DefaultTimezone)
	assert.Error(t, err, "expected an error for an out-of-range hour")
}

func TestParseEmptyInput(t *testing.T) {
	ref := time.Now()
	_, err := Parse("", ref, DefaultTimezone)
	assert.Equal(t, ErrEmptyInput, err)
}

func TestParseTomorrowAfternoon(t *testing.T) {
	ref := time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC)
	got, err := Parse("明天下午2點要上數學課", ref, "UTC")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-08-11", FormatForStorage(*got))
	assert.Equal(t, 14, got.Hour())
}

func TestCreateTimeInfoRoundTrip(t *testing.T) {
	x := time.Date(2025, 8, 11, 14, 0, 0, 0, time.UTC)
	info := CreateTimeInfo(x)
	assert.Equal(t, x.Format(time.RFC3339), info.Raw)
	assert.Equal(t, "2025-08-11", info.Date)
	assert.Equal(t, FormatForDisplay(x), info.Display)
}
