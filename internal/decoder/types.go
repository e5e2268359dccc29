// Package decoder parses OI Gen2 gas-sensor payloads, either raw off a
// monitor radio or wrapped in an RM024 repeater envelope, into a single
// normalized SensorReading type.
package decoder

import (
	"fmt"
	"time"
)

// GasType is the sensor's configured gas channel, index 0..33 per the OI
// Gen2 enumeration. Unknown numeric values are preserved, never replaced.
type GasType uint8

const (
	GasH2S GasType = iota
	GasSO2
	GasO2
	GasCO
	GasCL2
	GasCO2
	GasLEL
	GasVOC
	GasHCl
	GasNH3
	GasH2
	GasClO2
	GasHCN
	GasF2
	GasHF
	GasCH2O
	GasNO2
	GasO3
	GasFourToTwenty
	GasNotSpecified
	GasTempC
	GasTempF
	GasCH4
	GasNO
	GasPH3
	GasHBr
	GasEtO
	GasCH3SH
	GasAsH3
	GasR410A
	GasR1234YF
	GasR32
)

var gasNames = map[GasType]string{
	GasH2S: "H2S", GasSO2: "SO2", GasO2: "O2", GasCO: "CO", GasCL2: "CL2",
	GasCO2: "CO2", GasLEL: "LEL", GasVOC: "VOC", GasHCl: "HCl", GasNH3: "NH3",
	GasH2: "H2", GasClO2: "ClO2", GasHCN: "HCN", GasF2: "F2", GasHF: "HF",
	GasCH2O: "CH2O", GasNO2: "NO2", GasO3: "O3", GasFourToTwenty: "4-20mA",
	GasNotSpecified: "Not Specified", GasTempC: "°C", GasTempF: "°F",
	GasCH4: "CH4", GasNO: "NO", GasPH3: "PH3", GasHBr: "HBr", GasEtO: "EtO",
	GasCH3SH: "CH3SH", GasAsH3: "AsH3", GasR410A: "R410A",
	GasR1234YF: "R1234YF", GasR32: "R32",
}

func (g GasType) String() string {
	if name, ok := gasNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(g))
}

// MarshalJSON renders the numeric gas type under its name when known, or
// "Unknown(N)" when not — substitution happens only at this presentation
// boundary, never during decode.
func (g GasType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", g.String())), nil
}

// SensorType is the transducer technology, index 0..30.
type SensorType uint8

const (
	SensorEC SensorType = iota
	SensorIR
	SensorCB
	SensorMOS
	SensorPID
	SensorTankLevel
	SensorFourToTwenty
	SensorSwitch
	SensorPressure
	SensorTemperature
	SensorHumidity
)

var sensorTypeNames = map[SensorType]string{
	SensorEC: "EC", SensorIR: "IR", SensorCB: "CB", SensorMOS: "MOS",
	SensorPID: "PID", SensorTankLevel: "TankLevel",
	SensorFourToTwenty: "4-20mA", SensorSwitch: "Switch",
	SensorPressure: "Pressure", SensorTemperature: "Temperature",
	SensorHumidity: "Humidity",
}

func (s SensorType) String() string {
	if name, ok := sensorTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

func (s SensorType) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", s.String())), nil
}

// SensorMode is the operating mode, index 0..7.
type SensorMode uint8

const (
	ModeNormal SensorMode = iota
	ModeNull
	ModeCalibration
	ModeRelay
	ModeRadioAddress
	ModeDiagnostic
	ModeAdvancedMenu
	ModeAdminMenu
)

var sensorModeNames = map[SensorMode]string{
	ModeNormal: "Normal", ModeNull: "Null", ModeCalibration: "Calibration",
	ModeRelay: "Relay", ModeRadioAddress: "RadioAddress",
	ModeDiagnostic: "Diagnostic", ModeAdvancedMenu: "AdvancedMenu",
	ModeAdminMenu: "AdminMenu",
}

func (m SensorMode) String() string {
	if name, ok := sensorModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(m))
}

func (m SensorMode) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", m.String())), nil
}

// FaultCode is 0..15 (F0..F15).
type FaultCode uint8

var faultNames = map[FaultCode]string{
	0: "No Fault", 1: "Low Battery", 2: "Sensor Fail",
	7: "Communications Fault", 14: "Primary Link Timeout",
}

func (f FaultCode) String() string {
	if name, ok := faultNames[f]; ok {
		return fmt.Sprintf("F%d %s", uint8(f), name)
	}
	return fmt.Sprintf("F%d", uint8(f))
}

func (f FaultCode) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", f.String())), nil
}

// NetworkID tags the originating radio port.
type NetworkID string

// SensorReading is the immutable event emitted per valid decoded frame.
type SensorReading struct {
	NetworkID           NetworkID  `json:"network_id"`
	CapturedAt          time.Time  `json:"captured_at"`
	TransmitterAddress  uint16     `json:"transmitter_address"`
	ChannelSlot         uint8      `json:"channel_slot,omitempty"`
	HasChannelSlot      bool       `json:"-"`
	Reading             float32    `json:"reading"`
	GasType             GasType    `json:"gas_type"`
	SensorType          SensorType `json:"sensor_type"`
	SensorMode          SensorMode `json:"sensor_mode"`
	BatteryVoltage      float32    `json:"battery_voltage"`
	FaultCode           FaultCode  `json:"fault_code"`
	Precision           uint8      `json:"precision"`
	HasText             bool       `json:"has_text"`
	Text                string     `json:"text,omitempty"`
	SignalRSSI          *int8      `json:"signal_rssi,omitempty"`
}
