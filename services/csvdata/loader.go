// Package csvdata reads OHLCV bars from CSV files and writes bars and trade
// ledgers back out.
package csvdata

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/nadavw1312/trading-manager-server/services/bars"
)

var ErrNoBars = errors.New("no bars parsed")

var timeColumns = []string{"timestamp", "timestamp_ms", "open_time", "open_time_ms", "time", "date", "datetime"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// decoder returns a UTF-8 reader over r. UTF-16 input is recognised by its
// BOM; a UTF-8 BOM is dropped.
func decoder(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	b, _ := br.Peek(3)
	switch {
	case len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)):
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	case len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF:
		_, _ = br.Discard(3)
	}
	return br
}

// ParseTime accepts epoch seconds, epoch milliseconds or a date layout.
// Layouts without a zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.Trim(s, `"`))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= 1e12 || n <= -1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

type columns struct {
	ts, open, high, low, close, volume int
}

var positional = columns{ts: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}

func headerColumns(rec []string) (columns, bool) {
	idx := map[string]int{}
	for i, name := range rec {
		idx[strings.ToLower(strings.TrimSpace(strings.Trim(name, `"`)))] = i
	}
	c := columns{ts: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for _, name := range timeColumns {
		if i, ok := idx[name]; ok {
			c.ts = i
			break
		}
	}
	lookup := func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}
	c.open, c.high, c.low, c.close, c.volume = lookup("open"), lookup("high"), lookup("low"), lookup("close"), lookup("volume")
	ok := c.ts >= 0 && c.open >= 0 && c.high >= 0 && c.low >= 0 && c.close >= 0
	return c, ok
}

// Load parses bars of timeframe tf from r. Rows are sorted by time and
// duplicate timestamps keep the last row. Unparseable rows are skipped.
func Load(r io.Reader, tf bars.Timeframe) (*bars.Table, error) {
	cr := csv.NewReader(decoder(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	cols := positional
	var out []bars.Bar
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			if _, err := ParseTime(rec[0]); err != nil {
				if c, ok := headerColumns(rec); ok {
					cols = c
				}
				continue
			}
		}
		b, ok := parseRow(rec, cols)
		if !ok {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, ErrNoBars
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return bars.NewTable(tf, deduped)
}

func parseRow(rec []string, c columns) (bars.Bar, bool) {
	field := func(i int) (float64, bool) {
		if i < 0 || i >= len(rec) {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(rec[i], `"`)), 64)
		return v, err == nil
	}
	if c.ts >= len(rec) {
		return bars.Bar{}, false
	}
	ts, err := ParseTime(rec[c.ts])
	if err != nil {
		return bars.Bar{}, false
	}
	b := bars.Bar{Time: ts}
	var ok bool
	if b.Open, ok = field(c.open); !ok {
		return bars.Bar{}, false
	}
	if b.High, ok = field(c.high); !ok {
		return bars.Bar{}, false
	}
	if b.Low, ok = field(c.low); !ok {
		return bars.Bar{}, false
	}
	if b.Close, ok = field(c.close); !ok {
		return bars.Bar{}, false
	}
	b.Volume, _ = field(c.volume)
	return b, true
}

func LoadFile(path string, tf bars.Timeframe) (*bars.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Load(f, tf)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}
