package ls370

import (
	"testing"
)

func TestInterpretMeasurement(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		quantity Quantity
		want     Reading
	}{
		{"kelvin value", "1.234", QuantityKelvin, Reading{Kind: KindNumeric, Value: 1.234}},
		{"kelvin overload marker", "OVERLD", QuantityKelvin, Reading{Kind: KindSentinel, Sentinel: SentinelTempOver}},
		{"resistance overload marker", "OVERLD", QuantityResistance, Reading{Kind: KindSentinel, Sentinel: SentinelResistanceOver}},
		{"sensor overload marker", "OVER", QuantitySensor, Reading{Kind: KindSentinel, Sentinel: SentinelSensorOver}},
		{"power overload marker", "OVERLD", QuantityPower, Reading{Kind: KindSentinel, Sentinel: SentinelPowerOver}},
		{"kelvin not configured", "NOT CONFIGURED", QuantityKelvin, Reading{Kind: KindSentinel, Sentinel: SentinelNotConfigured}},
		{"resistance none", "NONE", QuantityResistance, Reading{Kind: KindSentinel, Sentinel: SentinelNotConfigured}},
		{"kelvin zero reclassified", "0.000", QuantityKelvin, Reading{Kind: KindSentinel, Sentinel: SentinelTempOver}},
		{"kelvin negative reclassified", "-0.5", QuantityKelvin, Reading{Kind: KindSentinel, Sentinel: SentinelTempOver}},
		{"resistance negative reclassified", "-1.23E-04", QuantityResistance, Reading{Kind: KindSentinel, Sentinel: SentinelResistanceOver}},
		{"resistance positive value", "1.23E-04", QuantityResistance, Reading{Kind: KindNumeric, Value: 1.23e-04}},
		{"power has no floor", "-1.23E-04", QuantityPower, Reading{Kind: KindNumeric, Value: -1.23e-04}},
		{"sensor has no floor", "-0.04917", QuantitySensor, Reading{Kind: KindNumeric, Value: -0.04917}},
		{"unparsable err marker", "ERR 04", QuantityKelvin, Reading{Kind: KindSentinel, Sentinel: SentinelTempOver}},
		{"unparsable invalid marker", "INVALID", QuantityResistance, Reading{Kind: KindSentinel, Sentinel: SentinelResistanceOver}},
		{"unparsable passthrough", "hello", QuantityKelvin, Reading{Kind: KindRaw, Text: "hello"}},
		{"empty line", "", QuantityKelvin, Reading{Kind: KindNoResponse}},
		{"whitespace only", " \t", QuantityPower, Reading{Kind: KindNoResponse}},
	}
	for _, tt := range tests {
		got := interpretMeasurement(tt.line, tt.quantity)
		if got.Kind != tt.want.Kind || got.Value != tt.want.Value || got.Sentinel != tt.want.Sentinel || got.Text != tt.want.Text {
			t.Errorf("%s: interpretMeasurement(%q) = %+v, want %+v", tt.name, tt.line, got, tt.want)
		}
	}
}

func TestInterpretIntCode(t *testing.T) {
	tests := []struct {
		line string
		want Reading
	}{
		{"2", Reading{Kind: KindIntCode, Code: 2}},
		{" 16 ", Reading{Kind: KindIntCode, Code: 16}},
		{"0", Reading{Kind: KindIntCode, Code: 0}},
		{"junk", Reading{Kind: KindRaw, Text: "junk"}},
		{"", Reading{Kind: KindNoResponse}},
	}
	for _, tt := range tests {
		got := interpretIntCode(tt.line)
		if got.Kind != tt.want.Kind || got.Code != tt.want.Code || got.Text != tt.want.Text {
			t.Errorf("interpretIntCode(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestInterpretFloat(t *testing.T) {
	tests := []struct {
		line string
		want Reading
	}{
		{"49.997", Reading{Kind: KindNumeric, Value: 49.997}},
		{"0.000", Reading{Kind: KindNumeric, Value: 0}},
		{"junk", Reading{Kind: KindRaw, Text: "junk"}},
		{"", Reading{Kind: KindNoResponse}},
	}
	for _, tt := range tests {
		got := interpretFloat(tt.line)
		if got.Kind != tt.want.Kind || got.Value != tt.want.Value || got.Text != tt.want.Text {
			t.Errorf("interpretFloat(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestInterpretRangeRecord(t *testing.T) {
	got := interpretRangeRecord("1,10,22,1,0")
	if got.Kind != KindRecord {
		t.Fatalf("expected record, got %+v", got)
	}
	want := map[string]int{"mode": 1, "excitation": 10, "range": 22, "autorange": 1, "cs_off": 0}
	for name, expected := range want {
		field, ok := got.Fields[name]
		if !ok {
			t.Errorf("missing field %q", name)
			continue
		}
		if field.Type != FieldInt || field.Value.(int) != expected {
			t.Errorf("field %q = %+v, want %d", name, field, expected)
		}
	}
}

func TestInterpretRangeRecordDegradesToRaw(t *testing.T) {
	tests := []string{
		"1,10,22",       // wrong arity
		"1,10,22,1,0,0", // wrong arity
		"1,x,22,1,0",    // unparsable field
	}
	for _, line := range tests {
		got := interpretRangeRecord(line)
		if got.Kind != KindRaw || got.Text != line {
			t.Errorf("interpretRangeRecord(%q) = %+v, want raw passthrough", line, got)
		}
	}
	if got := interpretRangeRecord(""); got.Kind != KindNoResponse {
		t.Errorf("interpretRangeRecord(\"\") = %+v, want no response", got)
	}
}

func TestInterpretAnalogRecord(t *testing.T) {
	got := interpretAnalogRecord("1,2,0,0,0.0,0.0,50.5")
	if got.Kind != KindRecord {
		t.Fatalf("expected record, got %+v", got)
	}
	if got.Fields["polarity"].Value.(int) != 1 {
		t.Errorf("polarity = %+v, want 1", got.Fields["polarity"])
	}
	if got.Fields["mode"].Value.(int) != 2 {
		t.Errorf("mode = %+v, want 2", got.Fields["mode"])
	}
	if got.Fields["manual_value"].Value.(float64) != 50.5 {
		t.Errorf("manual_value = %+v, want 50.5", got.Fields["manual_value"])
	}

	// firmware may append fields; the first seven are read
	got = interpretAnalogRecord("0,1,2,1,10.0,0.0,0.0,99")
	if got.Kind != KindRecord {
		t.Fatalf("expected record for extended response, got %+v", got)
	}
	if got.Fields["high_value"].Value.(float64) != 10.0 {
		t.Errorf("high_value = %+v, want 10.0", got.Fields["high_value"])
	}

	for _, line := range []string{"0,2,1", "0,2,1,0,x,0.0,50.5"} {
		if got := interpretAnalogRecord(line); got.Kind != KindRaw || got.Text != line {
			t.Errorf("interpretAnalogRecord(%q) = %+v, want raw passthrough", line, got)
		}
	}
}

func TestSentinelStrings(t *testing.T) {
	tests := map[SentinelKind]string{
		SentinelTempOver:       "T_OVER",
		SentinelResistanceOver: "R_OVER",
		SentinelSensorOver:     "SENSOR_OVER",
		SentinelPowerOver:      "PWR_OVER",
		SentinelNotConfigured:  "NOT_CONFIGURED",
	}
	for kind, want := range tests {
		if kind.String() != want {
			t.Errorf("%d.String() = %q, want %q", kind, kind.String(), want)
		}
	}
}

func TestReadingString(t *testing.T) {
	tests := []struct {
		r    Reading
		want string
	}{
		{Reading{Kind: KindNumeric, Value: 1.234}, "1.234"},
		{Reading{Kind: KindIntCode, Code: 2}, "2"},
		{Reading{Kind: KindSentinel, Sentinel: SentinelResistanceOver}, "R_OVER"},
		{Reading{Kind: KindRaw, Text: "LSCI,MODEL370,370A5K,04102008"}, "LSCI,MODEL370,370A5K,04102008"},
		{Reading{}, "NO_RESPONSE"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Reading%+v.String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}
