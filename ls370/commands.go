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
	"time"

	bg "github.com/SSSOCPaulCote/blunderguard"
)

/*
Command reference for the Model 370 AC resistance bridge, chapter 6 of the
Lake Shore user manual. All commands are ASCII lines terminated CR+LF.
*/

const (
	commandSuffix = "\r\n"

	maxInput     = 16
	maxBaudCode  = 2
	maxHeaterRng = 8

	// The instrument answers over a UART-to-firmware round trip that is not
	// bounded by data size, so every transmit is followed by a fixed settle
	// wait before the read. Range changes take longer to apply than queries.
	defaultQuerySettle  = 100 * time.Millisecond
	defaultOutputSettle = 200 * time.Millisecond
	defaultRangeSettle  = 500 * time.Millisecond

	ErrInvalidInput       = bg.Error("input channel must be an integer between 1 and 16")
	ErrInvalidBaudCode    = bg.Error("baud rate code must be 0 (300), 1 (1200) or 2 (9600)")
	ErrInvalidMode        = bg.Error("excitation mode must be an integer between 0 and 2")
	ErrInvalidExcitation  = bg.Error("excitation level must be an integer between 1 and 22")
	ErrInvalidRangeCode   = bg.Error("range code must be an integer between 1 and 22")
	ErrInvalidAutorange   = bg.Error("autorange must be 0 (off) or 1 (on)")
	ErrInvalidCSOff       = bg.Error("current source off must be 0 (on) or 1 (off)")
	ErrInvalidPercent     = bg.Error("heater output must be between 0.0 and 100.0 percent")
	ErrInvalidHeaterRange = bg.Error("heater range code must be an integer between 0 and 8")
	ErrInvalidChannel     = bg.Error("analog output channel must be 1 or 2")
	ErrInvalidPolarity    = bg.Error("polarity must be 0 (unipolar) or 1 (bipolar)")
	ErrInvalidAnalogMode  = bg.Error("analog mode must be an integer between 0 and 4")
	ErrStillModeChannel   = bg.Error("still mode only available on channel 2")
	ErrInvalidDataSource  = bg.Error("data source must be 1 (kelvin), 2 (ohms) or 3 (linear data)")
	ErrMissingEndpoints   = bg.Error("channel mode requires high and low endpoint values")
	ErrMissingManualValue = bg.Error("manual mode requires a manual output value")
	ErrUnknownDialect     = bg.Error("unknown command dialect")
)

// Dialect selects between the two command sets the 370 firmware family
// speaks. The RDG set is the verified one; the KRDG set matches older
// firmware and uses 8 data bit framing.
type Dialect int

const (
	DialectRDG Dialect = iota
	DialectKRDG
)

// ParseDialect maps a config string to a Dialect. The empty string selects
// the default RDG set.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rdg":
		return DialectRDG, nil
	case "krdg":
		return DialectKRDG, nil
	}
	return DialectRDG, fmt.Errorf("%w: %q", ErrUnknownDialect, s)
}

// DataBits returns the serial data bit count the dialect's firmware frames
// with: 7 for the RDG set, 8 for the KRDG set.
func (d Dialect) DataBits() int {
	if d == DialectKRDG {
		return 8
	}
	return 7
}

func (d Dialect) kelvinMnemonic() string {
	if d == DialectKRDG {
		return "KRDG"
	}
	return "RDGK"
}

func (d Dialect) resistanceMnemonic() string {
	if d == DialectKRDG {
		return "RRDG"
	}
	return "RDGR"
}

func (d Dialect) sensorMnemonic() string {
	if d == DialectKRDG {
		return "SRDG"
	}
	return "RDGS"
}

// validateInput bounds-checks an input channel number. The instrument
// silently ignores out-of-bound values, so this must happen before
// transmission.
func validateInput(input int) error {
	if input < 1 || input > maxInput {
		return fmt.Errorf("%w: got %d", ErrInvalidInput, input)
	}
	return nil
}

// inputQuery builds "<MNEMONIC>? <input>".
func inputQuery(mnemonic string, input int) (string, error) {
	if err := validateInput(input); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s? %d", mnemonic, input), nil
}

func setBaudCommand(code int) (string, error) {
	if code < 0 || code > maxBaudCode {
		return "", fmt.Errorf("%w: got %d", ErrInvalidBaudCode, code)
	}
	return fmt.Sprintf("BAUD %d", code), nil
}

// RangeConfig is the RDGRNG excitation/range configuration for one input.
type RangeConfig struct {
	Mode       int // 0=manual, 1=current excitation, 2=voltage excitation
	Excitation int // excitation level 1-22
	Range      int // resistance range 1-22
	Autorange  int // 0=off, 1=on
	CSOff      int // 0=current source on, 1=current source off
}

func (rc RangeConfig) validate() error {
	if rc.Mode < 0 || rc.Mode > 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidMode, rc.Mode)
	}
	if rc.Excitation < 1 || rc.Excitation > 22 {
		return fmt.Errorf("%w: got %d", ErrInvalidExcitation, rc.Excitation)
	}
	if rc.Range < 1 || rc.Range > 22 {
		return fmt.Errorf("%w: got %d", ErrInvalidRangeCode, rc.Range)
	}
	if rc.Autorange != 0 && rc.Autorange != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidAutorange, rc.Autorange)
	}
	if rc.CSOff != 0 && rc.CSOff != 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidCSOff, rc.CSOff)
	}
	return nil
}

// matches reports whether a read-back range record equals this
// configuration field for field.
func (rc RangeConfig) matches(r Reading) bool {
	if r.Kind != KindRecord {
		return false
	}
	want := map[string]int{
		"mode":       rc.Mode,
		"excitation": rc.Excitation,
		"range":      rc.Range,
		"autorange":  rc.Autorange,
		"cs_off":     rc.CSOff,
	}
	for name, expected := range want {
		field, ok := r.Fields[name]
		if !ok {
			return false
		}
		got, ok := field.Value.(int)
		if !ok || got != expected {
			return false
		}
	}
	return true
}

func setRangeCommand(input int, cfg RangeConfig) (string, error) {
	if err := validateInput(input); err != nil {
		return "", err
	}
	if err := cfg.validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("RDGRNG %d,%d,%d,%d,%d,%d", input, cfg.Mode, cfg.Excitation, cfg.Range, cfg.Autorange, cfg.CSOff), nil
}

func setHeaterOutputCommand(percent float64) (string, error) {
	if percent < 0.0 || percent > 100.0 {
		return "", fmt.Errorf("%w: got %v", ErrInvalidPercent, percent)
	}
	return fmt.Sprintf("MOUT %.3f", percent), nil
}

func setHeaterRangeCommand(code int) (string, error) {
	if code < 0 || code > maxHeaterRng {
		return "", fmt.Errorf("%w: got %d", ErrInvalidHeaterRange, code)
	}
	return fmt.Sprintf("HTRRNG %d", code), nil
}

// Analog output modes.
const (
	AnalogModeOff     = 0
	AnalogModeChannel = 1
	AnalogModeManual  = 2
	AnalogModeZone    = 3
	AnalogModeStill   = 4 // channel 2 only
)

// AnalogConfig is the ANALOG command configuration. The endpoint and manual
// values are pointers so the codec can tell a supplied zero from an absent
// field when a mode requires them.
type AnalogConfig struct {
	Polarity     int // 0=unipolar, 1=bipolar
	Mode         int // AnalogMode* constant
	InputChannel int // input to monitor, channel mode only
	DataSource   int // 1=kelvin, 2=ohms, 3=linear data, channel mode only
	HighValue    *float64
	LowValue     *float64
	ManualValue  *float64
}

func validateChannel(channel int) error {
	if channel != 1 && channel != 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidChannel, channel)
	}
	return nil
}

// setAnalogCommand builds the 8-field ANALOG command. Fields unused by the
// selected mode are zero-filled, never omitted.
func setAnalogCommand(channel int, cfg AnalogConfig) (string, error) {
	if err := validateChannel(channel); err != nil {
		return "", err
	}
	if cfg.Polarity != 0 && cfg.Polarity != 1 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidPolarity, cfg.Polarity)
	}
	if cfg.Mode < AnalogModeOff || cfg.Mode > AnalogModeStill {
		return "", fmt.Errorf("%w: got %d", ErrInvalidAnalogMode, cfg.Mode)
	}
	if cfg.Mode == AnalogModeStill && channel != 2 {
		return "", fmt.Errorf("%w: got channel %d", ErrStillModeChannel, channel)
	}
	inch, src := 0, 0
	high, low, manual := "0", "0", "0"
	switch cfg.Mode {
	case AnalogModeChannel:
		if err := validateInput(cfg.InputChannel); err != nil {
			return "", err
		}
		if cfg.DataSource < 1 || cfg.DataSource > 3 {
			return "", fmt.Errorf("%w: got %d", ErrInvalidDataSource, cfg.DataSource)
		}
		if cfg.HighValue == nil || cfg.LowValue == nil {
			return "", ErrMissingEndpoints
		}
		inch, src = cfg.InputChannel, cfg.DataSource
		high = formatValue(*cfg.HighValue)
		low = formatValue(*cfg.LowValue)
	case AnalogModeManual:
		if cfg.ManualValue == nil {
			return "", ErrMissingManualValue
		}
		manual = formatValue(*cfg.ManualValue)
	}
	return fmt.Sprintf("ANALOG %d,%d,%d,%d,%d,%s,%s,%s", channel, cfg.Polarity, cfg.Mode, inch, src, high, low, manual), nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Connection drives the bridge over an abstract Channel, one command
// outstanding at a time. It does not own the channel: the transport
// collaborator opens and closes it. The settle fields default from
// NewConnection and exist so tests can zero them.
type Connection struct {
	Channel      Channel
	Dialect      Dialect
	QuerySettle  time.Duration
	OutputSettle time.Duration
	RangeSettle  time.Duration
}

// NewConnection wraps a channel with the default settle delays.
func NewConnection(channel Channel, dialect Dialect) *Connection {
	return &Connection{
		Channel:      channel,
		Dialect:      dialect,
		QuerySettle:  defaultQuerySettle,
		OutputSettle: defaultOutputSettle,
		RangeSettle:  defaultRangeSettle,
	}
}

// transact resets stale input, writes one command line, waits for the
// instrument to turn around and reads the response line. An expired read
// timeout surfaces as an empty line.
func (c *Connection) transact(cmd string, settle time.Duration) (string, error) {
	if err := c.Channel.ResetInput(); err != nil {
		return "", err
	}
	if err := c.Channel.Write([]byte(cmd + commandSuffix)); err != nil {
		return "", err
	}
	time.Sleep(settle)
	line, err := c.Channel.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// send transmits a command that returns no response.
func (c *Connection) send(cmd string, settle time.Duration) error {
	if err := c.Channel.ResetInput(); err != nil {
		return err
	}
	if err := c.Channel.Write([]byte(cmd + commandSuffix)); err != nil {
		return err
	}
	time.Sleep(settle)
	return nil
}

// Identify queries *IDN? and returns the free-text identification.
func (c *Connection) Identify() (Reading, error) {
	line, err := c.transact("*IDN?", c.QuerySettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretText(line), nil
}

// BaudRate queries BAUD? and returns the integer rate code
// (0=300, 1=1200, 2=9600).
func (c *Connection) BaudRate() (Reading, error) {
	line, err := c.transact("BAUD?", c.QuerySettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretIntCode(line), nil
}

// SetBaudRate issues BAUD <code>. The caller must reconnect at the new rate.
func (c *Connection) SetBaudRate(code int) error {
	cmd, err := setBaudCommand(code)
	if err != nil {
		return err
	}
	return c.send(cmd, c.QuerySettle)
}

// Kelvin reads the temperature of an input in kelvin.
func (c *Connection) Kelvin(input int) (Reading, error) {
	return c.measure(c.Dialect.kelvinMnemonic(), input, QuantityKelvin)
}

// Resistance reads the resistance of an input in ohms.
func (c *Connection) Resistance(input int) (Reading, error) {
	return c.measure(c.Dialect.resistanceMnemonic(), input, QuantityResistance)
}

// Sensor reads the raw sensor value of an input.
func (c *Connection) Sensor(input int) (Reading, error) {
	return c.measure(c.Dialect.sensorMnemonic(), input, QuantitySensor)
}

// Power reads the excitation power of an input in watts.
func (c *Connection) Power(input int) (Reading, error) {
	return c.measure("RDGPWR", input, QuantityPower)
}

func (c *Connection) measure(mnemonic string, input int, q Quantity) (Reading, error) {
	cmd, err := inputQuery(mnemonic, input)
	if err != nil {
		return Reading{}, err
	}
	line, err := c.transact(cmd, c.QuerySettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretMeasurement(line, q), nil
}

// Status reads the RDGST? status bitfield of an input. Bit semantics are
// left to the caller.
func (c *Connection) Status(input int) (Reading, error) {
	cmd, err := inputQuery("RDGST", input)
	if err != nil {
		return Reading{}, err
	}
	line, err := c.transact(cmd, c.QuerySettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretIntCode(line), nil
}

// ResistanceRange queries the RDGRNG? excitation/range record of an input.
func (c *Connection) ResistanceRange(input int) (Reading, error) {
	cmd, err := inputQuery("RDGRNG", input)
	if err != nil {
		return Reading{}, err
	}
	line, err := c.transact(cmd, c.QuerySettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretRangeRecord(line), nil
}

// VerifyResult is the outcome of a write-then-verify round trip. The zero
// value is Unverifiable: the write happened, confirmation did not.
type VerifyResult int

const (
	Unverifiable VerifyResult = iota
	Applied
	NotApplied
)

func (v VerifyResult) String() string {
	switch v {
	case Applied:
		return "applied"
	case NotApplied:
		return "not applied"
	}
	return "unverifiable"
}

// RangeChange reports a SetResistanceRange round trip: the records read
// back before and after the write, and whether the instrument applied it.
type RangeChange struct {
	Result VerifyResult
	Before Reading
	After  Reading
}

// SetResistanceRange captures the current RDGRNG? record, transmits the
// range change with its longer settle delay, re-queries and compares the
// read-back field by field against cfg. NotApplied and Unverifiable are
// diagnostic values, not errors: the write was already transmitted and the
// instrument may have rejected or clamped it.
func (c *Connection) SetResistanceRange(input int, cfg RangeConfig) (RangeChange, error) {
	cmd, err := setRangeCommand(input, cfg)
	if err != nil {
		return RangeChange{}, err
	}
	before, err := c.ResistanceRange(input)
	if err != nil {
		before = Reading{Kind: KindNoResponse}
	}
	if err := c.send(cmd, c.RangeSettle); err != nil {
		return RangeChange{Before: before}, err
	}
	time.Sleep(c.OutputSettle)
	after, err := c.ResistanceRange(input)
	if err != nil {
		return RangeChange{Result: Unverifiable, Before: before}, nil
	}
	change := RangeChange{Before: before, After: after}
	switch {
	case after.Kind != KindRecord:
		change.Result = Unverifiable
	case cfg.matches(after):
		change.Result = Applied
	default:
		change.Result = NotApplied
	}
	return change, nil
}

// HeaterOutput queries HTR? and returns the output percentage.
func (c *Connection) HeaterOutput() (Reading, error) {
	line, err := c.transact("HTR?", c.OutputSettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretFloat(line), nil
}

// SetHeaterOutput issues MOUT with the percentage formatted to 3 decimals.
func (c *Connection) SetHeaterOutput(percent float64) error {
	cmd, err := setHeaterOutputCommand(percent)
	if err != nil {
		return err
	}
	return c.send(cmd, c.OutputSettle)
}

// HeaterRange queries HTRRNG? and returns the integer range code 0-8.
func (c *Connection) HeaterRange() (Reading, error) {
	line, err := c.transact("HTRRNG?", c.OutputSettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretIntCode(line), nil
}

// SetHeaterRange issues HTRRNG <code>. The heater range cannot be adjusted
// while autorange is enabled on the control input.
func (c *Connection) SetHeaterRange(code int) error {
	cmd, err := setHeaterRangeCommand(code)
	if err != nil {
		return err
	}
	return c.send(cmd, c.OutputSettle)
}

// HeaterStatus queries HTRST? and returns the status bitfield.
func (c *Connection) HeaterStatus() (Reading, error) {
	line, err := c.transact("HTRST?", c.OutputSettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretIntCode(line), nil
}

// SetAnalogOutput configures an analog output channel with the 8-field
// ANALOG command.
func (c *Connection) SetAnalogOutput(channel int, cfg AnalogConfig) error {
	cmd, err := setAnalogCommand(channel, cfg)
	if err != nil {
		return err
	}
	return c.send(cmd, c.OutputSettle)
}

// AnalogConfigQuery queries the ANALOG? configuration record of a channel.
func (c *Connection) AnalogConfigQuery(channel int) (Reading, error) {
	if err := validateChannel(channel); err != nil {
		return Reading{}, err
	}
	line, err := c.transact(fmt.Sprintf("ANALOG? %d", channel), c.OutputSettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretAnalogRecord(line), nil
}

// AnalogOutputValue queries AOUT? and returns the current output percentage.
func (c *Connection) AnalogOutputValue(channel int) (Reading, error) {
	if err := validateChannel(channel); err != nil {
		return Reading{}, err
	}
	line, err := c.transact(fmt.Sprintf("AOUT? %d", channel), c.OutputSettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretFloat(line), nil
}

// Raw transmits a command verbatim with no validation and returns the
// uninterpreted response. Escape hatch for commands the driver does not
// model.
func (c *Connection) Raw(cmd string) (Reading, error) {
	line, err := c.transact(cmd, c.QuerySettle)
	if err != nil {
		return Reading{}, err
	}
	return interpretText(line), nil
}

// InputReadings is the full set of measurements for one input of a scan.
// If Err is set, the channel or codec failed on this input; the readings
// are left as NoResponse and consumers should render Err for every field.
type InputReadings struct {
	Input       int
	Temperature Reading
	Resistance  Reading
	Sensor      Reading
	Power       Reading
	Status      Reading
	Err         error
}

// ScanInputs reads temperature, resistance, raw sensor, excitation power
// and status for each input in turn. Strictly sequential: one command
// outstanding at a time. A failure on one input is captured on its result
// and never aborts the rest of the scan.
func (c *Connection) ScanInputs(inputs []int) []InputReadings {
	results := make([]InputReadings, 0, len(inputs))
	for _, input := range inputs {
		r := InputReadings{Input: input}
		r.Temperature, r.Err = c.Kelvin(input)
		if r.Err == nil {
			r.Resistance, r.Err = c.Resistance(input)
		}
		if r.Err == nil {
			r.Sensor, r.Err = c.Sensor(input)
		}
		if r.Err == nil {
			r.Power, r.Err = c.Power(input)
		}
		if r.Err == nil {
			r.Status, r.Err = c.Status(input)
		}
		results = append(results, r)
	}
	return results
}
