package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/errors"
)

var zoneLayouts = []string{"", "Z07:00", "Z0700", "Z07"}

// named date formats, each a list of Go layouts tried in order.
var namedDateFormats = map[string][]string{
	"strict_date_optional_time":      optionalTimeLayouts(),
	"date_optional_time":             optionalTimeLayouts(),
	"strict_date":                    {"2006-01-02"},
	"date":                           {"2006-01-02"},
	"basic_date":                     {"20060102"},
	"strict_date_time":               withZones("2006-01-02T15:04:05.999999999"),
	"date_time":                      withZones("2006-01-02T15:04:05.999999999"),
	"strict_date_hour_minute_second": {"2006-01-02T15:04:05"},
	"date_hour_minute_second":        {"2006-01-02T15:04:05"},
	"strict_year_month":              {"2006-01"},
	"strict_year":                    {"2006"},
}

func optionalTimeLayouts() []string {
	out := []string{"2006-01-02"}
	for _, base := range []string{"2006-01-02T15", "2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999999"} {
		out = append(out, withZones(base)...)
	}
	return out
}

func withZones(base string) []string {
	out := make([]string, 0, len(zoneLayouts))
	for _, z := range zoneLayouts {
		out = append(out, base+z)
	}
	return out
}

type dateParser func(text string) (int64, error)

// DateFormatter parses dates using a "||" separated list of formats. Each
// format is a named format, epoch_millis, epoch_second or a Joda style
// pattern such as yyyy/MM/dd HH:mm:ss Z.
type DateFormatter struct {
	pattern string
	parsers []dateParser
}

var formatterCache sync.Map

// NewDateFormatter compiles pattern. Compiled formatters are cached.
func NewDateFormatter(pattern string) (*DateFormatter, error) {
	if pattern == "" {
		pattern = DefaultDateFormat
	}
	if f, ok := formatterCache.Load(pattern); ok {
		return f.(*DateFormatter), nil
	}
	f := &DateFormatter{pattern: pattern}
	for _, part := range strings.Split(pattern, "||") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty date format in [%s]", apperrors.ErrIllegalArgument, pattern)
		}
		f.parsers = append(f.parsers, compileDateFormat(part))
	}
	actual, _ := formatterCache.LoadOrStore(pattern, f)
	return actual.(*DateFormatter), nil
}

func (f *DateFormatter) Pattern() string { return f.pattern }

// ParseMillis returns text as milliseconds since the epoch using the first
// format that accepts it.
func (f *DateFormatter) ParseMillis(text string) (int64, error) {
	for _, p := range f.parsers {
		if v, err := p(text); err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("failed to parse date field [%s] with format [%s]", text, f.pattern)
}

func compileDateFormat(format string) dateParser {
	switch format {
	case "epoch_millis":
		return func(text string) (int64, error) {
			return strconv.ParseInt(text, 10, 64)
		}
	case "epoch_second":
		return func(text string) (int64, error) {
			v, err := strconv.ParseInt(text, 10, 64)
			return v * 1000, err
		}
	}
	layouts, ok := namedDateFormats[format]
	if !ok {
		layouts = []string{jodaToLayout(format)}
	}
	return func(text string) (int64, error) {
		var lastErr error
		for _, layout := range layouts {
			t, err := time.Parse(layout, text)
			if err == nil {
				return t.UnixMilli(), nil
			}
			lastErr = err
		}
		return 0, lastErr
	}
}

var jodaTokens = []struct {
	joda  string
	goFmt string
}{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"dd", "02"},
	{"d", "2"},
	{"EEEE", "Monday"},
	{"EEE", "Mon"},
	{"HH", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"ss", "05"},
	{"SSS", "000"},
	{"SS", "00"},
	{"S", "0"},
	{"a", "PM"},
	{"ZZ", "-07:00"},
	{"Z", "-0700"},
	{"z", "MST"},
}

// jodaToLayout converts a Joda style date pattern into a Go time layout.
// Text inside single quotes is copied literally.
func jodaToLayout(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		if pattern[i] == '\'' {
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}
		matched := false
		for _, tok := range jodaTokens {
			if strings.HasPrefix(pattern[i:], tok.joda) {
				b.WriteString(tok.goFmt)
				i += len(tok.joda)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

// looksLikeDate is the cheap pre-check run before attempting date
// detection on a dynamic string value.
func looksLikeDate(text string) bool {
	return strings.Count(text, ":") > 1 || strings.Count(text, "-") > 1 || strings.Count(text, "/") > 1
}
