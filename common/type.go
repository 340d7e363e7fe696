package common

import (
	"encoding/json"
	"github.com/google/uuid"
	"github.com/widdakay/fan-controller/pkg/custype"
)

type Status = string
type MsgType = uint8
type StringMsecMap = map[string]custype.TimeMillisecond

// NodeInfoStruct is sent once over the command link after dialing the server.
type NodeInfoStruct struct {
	Identifier  string                 `json:"identifier"`
	Session     uuid.UUID              `json:"session"`
	ChipId      string                 `json:"chip_id"`
	Firmware    string                 `json:"firmware"`
	Instruments []InstrumentInfoStruct `json:"instruments"`
	HealthItems []string               `json:"health_items"`
	HasFan      bool                   `json:"has_fan"`
}

type InstrumentInfoStruct struct {
	ItemName    string `json:"item_name"`
	Kind        string `json:"kind"`
	Measurement string `json:"measurement"`
	BusId       uint8  `json:"bus_id"`
	Address     uint16 `json:"address"`
	Serial      string `json:"serial,omitempty"`
	Derived     bool   `json:"derived"`
}

type SendMsgStruct struct {
	Type MsgType `json:"type"`
	Body any     `json:"body"`
}

type ReceiveMsgStruct struct {
	Type MsgType         `json:"type"`
	Body json.RawMessage `json:"body"`
}

type NodeHealthStruct struct {
	CpuTemp  float64 `json:"cpu_temp"`
	FreeHeap uint64  `json:"free_heap"`
	FanDuty  float64 `json:"fan_duty"`
}

type NodeHealthTimeStruct struct {
	NodeHealthStruct
	Millisecond custype.TimeMillisecond `json:"msec"`
}

type DataTimeStruct struct {
	Value       float64                 `json:"val"`
	Millisecond custype.TimeMillisecond `json:"msec"`
}

type ItemNameDataTimeStruct struct {
	ItemName string `json:"item_name"`
	DataTimeStruct
}

// FanCommandStruct carries one remote fan order. Absent fields leave the
// corresponding setting untouched; Stop overrides everything.
type FanCommandStruct struct {
	Power   *float64 `json:"power,omitempty"`
	Forward *bool    `json:"forward,omitempty"`
	Stop    bool     `json:"stop,omitempty"`
}

type FanStatusStruct struct {
	Duty        float64                 `json:"duty"`
	Forward     bool                    `json:"forward"`
	EnA         bool                    `json:"en_a"`
	EnB         bool                    `json:"en_b"`
	Fault       bool                    `json:"fault"`
	Millisecond custype.TimeMillisecond `json:"msec"`
}

type PortTerminalStruct struct {
	Command string `json:"command"`
}

type StatusChangeStruct struct {
	Status    Status                  `json:"status"`
	ChangedAt custype.TimeMillisecond `json:"changed_at"`
}

// ItemStatusStruct is used for item status change msg
type ItemStatusStruct struct {
	ItemName string `json:"item_name"`
	StatusChangeStruct
}

type RowIdItemStatusStruct struct {
	RowId int64 `json:"row_id"`
	ItemStatusStruct
}
