// Package tracefile reads sweep measurements from disk into classifier input.
//
// Two encodings are understood. Delimited text has one sample per line with
// voltage, current and optional time columns separated by commas, tabs,
// semicolons or whitespace. An optional header line names the columns, and
// comment lines of the form "# key: value" or "# key = value" become sweep
// metadata. JSON files hold {"voltage": [...], "current": [...], "time":
// [...], "metadata": {...}}.
package tracefile

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/memristive.report/internal/ivsweep"
)

// ErrNoSamples is returned for files without a single data row.
var ErrNoSamples = errors.New("no samples")

const maxLineLength = 1 << 20

var columnAliases = map[string]string{
	"v": "voltage", "voltage": "voltage", "voltage_v": "voltage", "v(v)": "voltage", "bias": "voltage", "vbias": "voltage",
	"i": "current", "current": "current", "current_a": "current", "i(a)": "current", "id": "current",
	"t": "time", "time": "time", "time_s": "time", "t(s)": "time", "timestamp": "time",
}

type columns struct {
	voltage, current, time int
}

var defaultColumns = columns{voltage: 0, current: 1, time: 2}

// Parse reads a delimited text sweep.
func Parse(r io.Reader) (ivsweep.Input, error) {
	in := ivsweep.Input{Metadata: map[string]any{}}
	cols := defaultColumns
	sawData, sawHeader := false, false
	hasTime := true

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "%") {
			if k, v, ok := metadataLine(line[1:]); ok {
				in.Metadata[k] = v
			}
			continue
		}

		fields := splitFields(line)
		if !sawData && !sawHeader && !numericRow(fields) {
			c, err := headerColumns(fields)
			if err != nil {
				return ivsweep.Input{}, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cols, sawHeader = c, true
			continue
		}

		v, err := cell(fields, cols.voltage)
		if err != nil {
			return ivsweep.Input{}, fmt.Errorf("line %d: voltage: %w", lineNo, err)
		}
		c, err := cell(fields, cols.current)
		if err != nil {
			return ivsweep.Input{}, fmt.Errorf("line %d: current: %w", lineNo, err)
		}
		in.Voltage = append(in.Voltage, v)
		in.Current = append(in.Current, c)

		// Time is all-or-nothing: a single row without it drops the column.
		if hasTime && cols.time >= 0 && cols.time < len(fields) {
			tv, err := cell(fields, cols.time)
			if err != nil {
				return ivsweep.Input{}, fmt.Errorf("line %d: time: %w", lineNo, err)
			}
			in.Time = append(in.Time, tv)
		} else {
			hasTime = false
		}
		sawData = true
	}
	if err := scanner.Err(); err != nil {
		return ivsweep.Input{}, fmt.Errorf("failed to read sweep: %w", err)
	}
	if !sawData {
		return ivsweep.Input{}, ErrNoSamples
	}
	if !hasTime || len(in.Time) != len(in.Voltage) {
		in.Time = nil
	}
	if len(in.Metadata) == 0 {
		in.Metadata = nil
	}
	return in, nil
}

type jsonSweep struct {
	Voltage  []float64      `json:"voltage"`
	Current  []float64      `json:"current"`
	Time     []float64      `json:"time,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ParseJSON reads a JSON encoded sweep.
func ParseJSON(r io.Reader) (ivsweep.Input, error) {
	var s jsonSweep
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return ivsweep.Input{}, fmt.Errorf("failed to parse sweep JSON: %w", err)
	}
	if len(s.Voltage) == 0 && len(s.Current) == 0 {
		return ivsweep.Input{}, ErrNoSamples
	}
	return ivsweep.Input{Voltage: s.Voltage, Current: s.Current, Time: s.Time, Metadata: s.Metadata}, nil
}

// Load reads the named sweep from fsys, choosing the encoding by extension.
func Load(fsys fs.FS, name string) (ivsweep.Input, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return ivsweep.Input{}, fmt.Errorf("failed to open sweep: %w", err)
	}
	defer f.Close()

	var in ivsweep.Input
	if strings.EqualFold(path.Ext(name), ".json") {
		in, err = ParseJSON(f)
	} else {
		in, err = Parse(f)
	}
	if err != nil {
		return ivsweep.Input{}, fmt.Errorf("%s: %w", name, err)
	}
	return in, nil
}

// LoadFile reads a sweep from the local filesystem.
func LoadFile(p string) (ivsweep.Input, error) {
	clean := filepath.Clean(p)
	return Load(os.DirFS(filepath.Dir(clean)), filepath.Base(clean))
}

func metadataLine(s string) (string, any, bool) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, ":=")
	if idx <= 0 {
		return "", nil, false
	}
	key := strings.ToLower(strings.TrimSpace(s[:idx]))
	key = strings.ReplaceAll(key, " ", "_")
	val := strings.TrimSpace(s[idx+1:])
	if key == "" || val == "" {
		return "", nil, false
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return key, f, true
	}
	return key, val, true
}

func splitFields(line string) []string {
	var fields []string
	switch {
	case strings.Contains(line, ","):
		fields = strings.Split(line, ",")
	case strings.Contains(line, "\t"):
		fields = strings.Split(line, "\t")
	case strings.Contains(line, ";"):
		fields = strings.Split(line, ";")
	default:
		return strings.Fields(line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func numericRow(fields []string) bool {
	for _, f := range fields {
		if f == "" {
			continue
		}
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return false
		}
	}
	return true
}

func headerColumns(fields []string) (columns, error) {
	c := columns{voltage: -1, current: -1, time: -1}
	for i, f := range fields {
		name := strings.ToLower(strings.Trim(strings.TrimSpace(f), `"'`))
		switch columnAliases[name] {
		case "voltage":
			if c.voltage < 0 {
				c.voltage = i
			}
		case "current":
			if c.current < 0 {
				c.current = i
			}
		case "time":
			if c.time < 0 {
				c.time = i
			}
		}
	}
	if c.voltage < 0 || c.current < 0 {
		return c, fmt.Errorf("header %q does not name voltage and current columns", strings.Join(fields, ","))
	}
	return c, nil
}

// cell parses one numeric column. Empty cells read as NaN so the
// conditioner can decide what to do with them.
func cell(fields []string, idx int) (float64, error) {
	if idx >= len(fields) {
		return 0, fmt.Errorf("missing column %d (row has %d)", idx+1, len(fields))
	}
	s := fields[idx]
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
