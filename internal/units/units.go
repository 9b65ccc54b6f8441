// Package units provides shared constants and validation for report output
// formats, and SI-prefixed formatting of electrical quantities.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Output format constants
const (
	JSON = "json"
	Text = "text"
)

// Quantity symbols
const (
	Volt = "V"
	Amp  = "A"
	Ohm  = "Ω"
)

// ValidFormats contains all valid output formats
var ValidFormats = []string{JSON, Text}

// IsValid checks if the given format is in the list of valid formats
func IsValid(format string) bool {
	for _, f := range ValidFormats {
		if format == f {
			return true
		}
	}
	return false
}

// GetValidFormatsString returns a comma-separated string of valid formats for error messages
func GetValidFormatsString() string {
	return strings.Join(ValidFormats, ", ")
}

var prefixes = []struct {
	exp    int
	symbol string
}{
	{-12, "p"},
	{-9, "n"},
	{-6, "µ"},
	{-3, "m"},
	{0, ""},
	{3, "k"},
	{6, "M"},
	{9, "G"},
}

// FormatSI renders v with three significant figures and the largest SI
// prefix that keeps the mantissa at or above one, e.g. 3575.8 Ω -> "3.58 kΩ".
func FormatSI(v float64, unit string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Sprintf("%v %s", v, unit)
	}
	if v == 0 {
		return "0 " + unit
	}
	// Round first so 999.96 picks "k" rather than printing "1e+03".
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 3, 64), 64)
	abs := math.Abs(r)
	exp := int(math.Floor(math.Log10(abs)))
	if math.Pow10(exp+1) <= abs {
		exp++
	} else if math.Pow10(exp) > abs {
		exp--
	}

	p := prefixes[0]
	for _, c := range prefixes {
		if exp >= c.exp {
			p = c
		}
	}
	scaled := r / math.Pow10(p.exp)
	return strconv.FormatFloat(scaled, 'g', 3, 64) + " " + p.symbol + unit
}

// Resistance formats ohms.
func Resistance(ohms float64) string { return FormatSI(ohms, Ohm) }

// Current formats amps.
func Current(amps float64) string { return FormatSI(amps, Amp) }

// Voltage formats volts.
func Voltage(volts float64) string { return FormatSI(volts, Volt) }
