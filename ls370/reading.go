/*
Author: Paul Côté
Last Change Author: Paul Côté
Last Date Changed: 2022/08/19
*/

package ls370

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Reading. The zero value is
// KindNoResponse so a zero Reading means the instrument said nothing.
type Kind int

const (
	KindNoResponse Kind = iota
	KindNumeric
	KindIntCode
	KindRecord
	KindSentinel
	KindRaw
)

// SentinelKind names the textual conditions the bridge reports in place of
// a value. Over-range sentinels are tagged per quantity so the caller can
// tell which reading tripped.
type SentinelKind int

const (
	SentinelTempOver SentinelKind = iota
	SentinelResistanceOver
	SentinelSensorOver
	SentinelPowerOver
	SentinelNotConfigured
)

func (s SentinelKind) String() string {
	switch s {
	case SentinelTempOver:
		return "T_OVER"
	case SentinelResistanceOver:
		return "R_OVER"
	case SentinelSensorOver:
		return "SENSOR_OVER"
	case SentinelPowerOver:
		return "PWR_OVER"
	case SentinelNotConfigured:
		return "NOT_CONFIGURED"
	}
	return "UNKNOWN"
}

type FieldType int32

const (
	FieldInt FieldType = iota
	FieldFloat
)

// Field is one named value inside a record response.
type Field struct {
	Type  FieldType
	Value interface{}
}

// Reading is the classified result of a single response line. Exactly one
// variant is meaningful, selected by Kind.
type Reading struct {
	Kind     Kind
	Value    float64          // KindNumeric
	Code     int              // KindIntCode
	Fields   map[string]Field // KindRecord
	Sentinel SentinelKind     // KindSentinel
	Text     string           // KindRaw
}

// String returns a display form of the reading.
func (r Reading) String() string {
	switch r.Kind {
	case KindNumeric:
		return strconv.FormatFloat(r.Value, 'g', -1, 64)
	case KindIntCode:
		return strconv.Itoa(r.Code)
	case KindRecord:
		respStr := ""
		for field, value := range r.Fields {
			respStr += fmt.Sprintf("%s %v\n", field, value.Value)
		}
		return respStr
	case KindSentinel:
		return r.Sentinel.String()
	case KindRaw:
		return r.Text
	}
	return "NO_RESPONSE"
}

// Float64 returns the numeric value and whether the reading carries one.
func (r Reading) Float64() (float64, bool) {
	if r.Kind != KindNumeric {
		return 0, false
	}
	return r.Value, true
}

// Quantity identifies which measurement a response line answers; it selects
// the over-range sentinel tag and whether a non-positive parsed value is
// itself treated as over-range.
type Quantity int

const (
	QuantityKelvin Quantity = iota
	QuantityResistance
	QuantitySensor
	QuantityPower
)

func (q Quantity) overSentinel() SentinelKind {
	switch q {
	case QuantityResistance:
		return SentinelResistanceOver
	case QuantitySensor:
		return SentinelSensorOver
	case QuantityPower:
		return SentinelPowerOver
	}
	return SentinelTempOver
}

// nonPositiveIsOver reports whether a parsed value <= 0.0 must be
// reclassified as over-range. The 370 reports nonsensical non-positive
// kelvin and ohm values under some over-range conditions instead of the
// OVERLD marker. Power and raw sensor readings have no physical floor.
func (q Quantity) nonPositiveIsOver() bool {
	return q == QuantityKelvin || q == QuantityResistance
}

// interpretMeasurement classifies a measurement response line: a named
// condition marker, a float, or the raw line. A malformed-but-present
// response is surfaced as KindRaw, never as an error.
func interpretMeasurement(line string, q Quantity) Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{Kind: KindNoResponse}
	}
	upper := strings.ToUpper(line)
	if strings.Contains(upper, "OVERLD") || strings.Contains(upper, "OVER") {
		return Reading{Kind: KindSentinel, Sentinel: q.overSentinel()}
	}
	if strings.Contains(upper, "NOT") || strings.Contains(upper, "NONE") {
		return Reading{Kind: KindSentinel, Sentinel: SentinelNotConfigured}
	}
	v, err := strconv.ParseFloat(line, 64)
	if err == nil {
		if q.nonPositiveIsOver() && v <= 0.0 {
			return Reading{Kind: KindSentinel, Sentinel: q.overSentinel()}
		}
		return Reading{Kind: KindNumeric, Value: v}
	}
	for _, marker := range []string{"OVER", "ERR", "INVALID"} {
		if strings.Contains(upper, marker) {
			return Reading{Kind: KindSentinel, Sentinel: q.overSentinel()}
		}
	}
	return Reading{Kind: KindRaw, Text: line}
}

// interpretIntCode classifies an integer response (status bitfields, baud
// and heater range codes). Bit-level semantics are left to the caller.
func interpretIntCode(line string) Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{Kind: KindNoResponse}
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return Reading{Kind: KindRaw, Text: line}
	}
	return Reading{Kind: KindIntCode, Code: n}
}

// interpretFloat classifies a plain float response (heater output and
// analog output percentages).
func interpretFloat(line string) Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{Kind: KindNoResponse}
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return Reading{Kind: KindRaw, Text: line}
	}
	return Reading{Kind: KindNumeric, Value: v}
}

// interpretText wraps a free-text response (*IDN?, raw passthrough).
func interpretText(line string) Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{Kind: KindNoResponse}
	}
	return Reading{Kind: KindRaw, Text: line}
}

var rangeRecordFields = []string{"mode", "excitation", "range", "autorange", "cs_off"}

// interpretRangeRecord parses the RDGRNG? response
// <mode>,<excitation>,<range>,<autorange>,<cs_off>. A wrong field count or
// an unparsable field degrades to KindRaw rather than erroring.
func interpretRangeRecord(line string) Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{Kind: KindNoResponse}
	}
	parts := strings.Split(line, ",")
	if len(parts) != len(rangeRecordFields) {
		return Reading{Kind: KindRaw, Text: line}
	}
	fields := make(map[string]Field)
	for i, name := range rangeRecordFields {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return Reading{Kind: KindRaw, Text: line}
		}
		fields[name] = Field{Type: FieldInt, Value: n}
	}
	return Reading{Kind: KindRecord, Fields: fields}
}

// interpretAnalogRecord parses the ANALOG? response
// <polarity>,<mode>,<channel>,<data_source>,<high>,<low>,<manual>. The
// firmware may append fields, so seven or more are accepted and the first
// seven read; anything shorter degrades to KindRaw.
func interpretAnalogRecord(line string) Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reading{Kind: KindNoResponse}
	}
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return Reading{Kind: KindRaw, Text: line}
	}
	intNames := []string{"polarity", "mode", "channel", "data_source"}
	floatNames := []string{"high_value", "low_value", "manual_value"}
	fields := make(map[string]Field)
	for i, name := range intNames {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return Reading{Kind: KindRaw, Text: line}
		}
		fields[name] = Field{Type: FieldInt, Value: n}
	}
	for i, name := range floatNames {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[4+i]), 64)
		if err != nil {
			return Reading{Kind: KindRaw, Text: line}
		}
		fields[name] = Field{Type: FieldFloat, Value: v}
	}
	return Reading{Kind: KindRecord, Fields: fields}
}
