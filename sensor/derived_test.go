package sensor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widdakay/fan-controller/telemetry"
)

// fakeAnalog stands in for the ADC parent: four channels with canned
// voltages and per-channel failures.
type fakeAnalog struct {
	identity
	volts     [4]float64
	errs      map[int]error
	reads     []int
	connected bool
}

func newFakeAnalog() *fakeAnalog {
	return &fakeAnalog{
		identity:  identity{kind: "ads1115", measurement: "ads1115", busId: 0, addr: 0x48},
		errs:      map[int]error{},
		connected: true,
	}
}

func (f *fakeAnalog) Connected() bool { return f.connected }

func (f *fakeAnalog) ReadRecord() (telemetry.Record, error) {
	return f.newRecord(), nil
}

func (f *fakeAnalog) ReadVolts(channel int) (float64, error) {
	f.reads = append(f.reads, channel)
	if err := f.errs[channel]; err != nil {
		return 0, err
	}
	return f.volts[channel], nil
}

func TestThermistorEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		pinVolts    float64
		railVolts   float64
		wantInRange bool
		check       func(t *testing.T, tr TempReading)
	}{
		{
			// 10k NTC against the 10k series resistor: the midpoint.
			name: "room temperature", pinVolts: 1.65, railVolts: 1.65, wantInRange: true,
			check: func(t *testing.T, tr TempReading) {
				assert.InDelta(t, 25.0, tr.TempC, 0.1)
				assert.InDelta(t, 10000.0, tr.Ohms, 1.0)
			},
		},
		{
			// Sagging rail moves the pin voltage but not the ratio; the
			// live supply reading keeps the answer at 25C.
			name: "rail sag tracked", pinVolts: 1.5, railVolts: 1.5, wantInRange: true,
			check: func(t *testing.T, tr TempReading) {
				assert.InDelta(t, 25.0, tr.TempC, 0.1)
			},
		},
		{
			name: "too cold", pinVolts: 3.2, railVolts: 1.65, wantInRange: false,
			check: func(t *testing.T, tr TempReading) {
				assert.Less(t, tr.TempC, 0.0)
			},
		},
		{
			name: "too hot", pinVolts: 0.05, railVolts: 1.65, wantInRange: false,
			check: func(t *testing.T, tr TempReading) {
				assert.Greater(t, tr.TempC, 100.0)
			},
		},
		{
			name: "grounded pin", pinVolts: 0.0, railVolts: 1.65, wantInRange: false,
			check: func(t *testing.T, tr TempReading) {
				assert.True(t, math.IsNaN(tr.TempC))
				assert.True(t, math.IsNaN(tr.Ohms))
			},
		},
		{
			name: "pin at supply", pinVolts: 1.65, railVolts: 0.825, wantInRange: false,
			check: func(t *testing.T, tr TempReading) {
				assert.True(t, math.IsNaN(tr.TempC))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := newFakeAnalog()
			parent.volts[adsChanMotorNtc] = tt.pinVolts
			parent.volts[adsChanRail3v3] = tt.railVolts

			th := newThermistor(parent, "motor_ntc", adsChanMotorNtc, adsNtcCurve)
			tr, err := th.Temperature()
			require.NoError(t, err)
			assert.Equal(t, tt.wantInRange, tr.InRange)
			assert.Equal(t, tt.pinVolts, tr.Volts)
			tt.check(t, tr)
		})
	}
}

func TestThermistorSupplyFallback(t *testing.T) {
	// With the 3V3 reference channel unreadable the nominal rail stands in.
	parent := newFakeAnalog()
	parent.volts[adsChanMotorNtc] = 1.65
	parent.errs[adsChanRail3v3] = errors.New("adc saturated")

	th := newThermistor(parent, "motor_ntc", adsChanMotorNtc, adsNtcCurve)
	tr, err := th.Temperature()
	require.NoError(t, err)
	assert.InDelta(t, 25.0, tr.TempC, 0.1)
	assert.True(t, tr.InRange)
}

func TestThermistorReadError(t *testing.T) {
	parent := newFakeAnalog()
	parent.errs[adsChanMcuNtc] = errors.New("conversion timeout")

	th := newThermistor(parent, "mcu_ntc", adsChanMcuNtc, adsNtcCurve)
	_, err := th.Temperature()
	assert.Error(t, err)
	_, err = th.ReadRecord()
	assert.Error(t, err)
}

func TestThermistorReadsLive(t *testing.T) {
	parent := newFakeAnalog()
	parent.volts[adsChanMotorNtc] = 1.65
	parent.volts[adsChanRail3v3] = 1.65

	th := newThermistor(parent, "motor_ntc", adsChanMotorNtc, adsNtcCurve)
	_, err := th.Temperature()
	require.NoError(t, err)
	_, err = th.Temperature()
	require.NoError(t, err)
	// Each conversion samples the pin and then the supply reference.
	assert.Equal(t, []int{adsChanMotorNtc, adsChanRail3v3, adsChanMotorNtc, adsChanRail3v3}, parent.reads)
}

func TestThermistorRecord(t *testing.T) {
	parent := newFakeAnalog()
	parent.volts[adsChanMotorNtc] = 1.65
	parent.volts[adsChanRail3v3] = 1.65

	th := newThermistor(parent, "motor_ntc", adsChanMotorNtc, adsNtcCurve)
	rec, err := th.ReadRecord()
	require.NoError(t, err)
	d := decodeRecord(t, rec)
	assert.Equal(t, "thermistor", d.Measurement)
	assert.Equal(t, "motor_ntc", d.Tags["sensor_name"])
	assert.Equal(t, "0", d.Tags["bus_id"])
	assert.InDelta(t, 25.0, d.Fields["temp_c"], 0.1)
	assert.InDelta(t, 10000.0, d.Fields["resistance"], 1.0)
	assert.InDelta(t, 1.65, d.Fields["voltage"], 1e-9)
	assert.Equal(t, true, d.Fields["in_range"])
}

func TestThermistorRecordDegenerate(t *testing.T) {
	parent := newFakeAnalog()
	parent.volts[adsChanRail3v3] = 1.65

	th := newThermistor(parent, "motor_ntc", adsChanMotorNtc, adsNtcCurve)
	rec, err := th.ReadRecord()
	require.NoError(t, err)
	d := decodeRecord(t, rec)
	assert.Nil(t, d.Fields["temp_c"])
	assert.Nil(t, d.Fields["resistance"])
	assert.Equal(t, false, d.Fields["in_range"])
}

func TestRailMonitor(t *testing.T) {
	parent := newFakeAnalog()
	parent.volts[adsChanRail3v3] = 1.66
	parent.volts[adsChanRail5v] = 2.51

	r33 := newRailMonitor(parent, "3v3_rail", adsChanRail3v3, adsRailDividerRatio)
	v, err := r33.Volts()
	require.NoError(t, err)
	assert.InDelta(t, 3.32, v, 1e-9)

	r5 := newRailMonitor(parent, "5v_rail", adsChanRail5v, adsRailDividerRatio)
	rec, err := r5.ReadRecord()
	require.NoError(t, err)
	d := decodeRecord(t, rec)
	assert.Equal(t, "voltage_rail", d.Measurement)
	assert.Equal(t, "5v_rail", d.Tags["sensor_name"])
	assert.InDelta(t, 5.02, d.Fields["voltage"], 1e-9)
	assert.InDelta(t, 2.51, d.Fields["pin_volts"], 1e-9)
}

func TestRailMonitorReadError(t *testing.T) {
	parent := newFakeAnalog()
	parent.errs[adsChanRail5v] = errors.New("conversion timeout")

	r5 := newRailMonitor(parent, "5v_rail", adsChanRail5v, adsRailDividerRatio)
	_, err := r5.Volts()
	assert.Error(t, err)
	_, err = r5.ReadRecord()
	assert.Error(t, err)
}

func TestDerivedConnectedFollowsParent(t *testing.T) {
	parent := newFakeAnalog()
	th := newThermistor(parent, "motor_ntc", adsChanMotorNtc, adsNtcCurve)
	rail := newRailMonitor(parent, "3v3_rail", adsChanRail3v3, adsRailDividerRatio)
	assert.True(t, th.Connected())
	assert.True(t, rail.Connected())

	parent.connected = false
	assert.False(t, th.Connected())
	assert.False(t, rail.Connected())
}

func TestDerivedItemNames(t *testing.T) {
	parent := newFakeAnalog()
	th := newThermistor(parent, "mcu_ntc", adsChanMcuNtc, adsNtcCurve)
	rail := newRailMonitor(parent, "5v_rail", adsChanRail5v, adsRailDividerRatio)
	assert.Equal(t, "ntc_thermistor_b0_a48_mcu_ntc", ItemName(th))
	assert.Equal(t, "voltage_rail_b0_a48_5v_rail", ItemName(rail))
}
