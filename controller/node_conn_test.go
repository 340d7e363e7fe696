package controller

import (
	"encoding/json"
	"log"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widdakay/fan-controller/common"
	"github.com/widdakay/fan-controller/db"
	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/pkg/custype"
)

func Test_nodeConn(t *testing.T) {
	db.InitData(t)
	itemsStatus = make(map[string]common.StatusChangeStruct)
	ds, err := db.GetItemsLatestStatus()
	require.NoError(t, err)
	for _, s := range ds {
		itemsStatus[s.ItemName] = s.StatusChangeStruct
	}

	ff := &fakeFan{enA: true, enB: true}
	prevFan := fanCtl
	fanCtl = ff
	defer func() { fanCtl = prevFan }()

	conn1, conn2 := net.Pipe() // conn1: node side

	go func() {
		defer func() {
			log.Println("close node client")
			_ = conn1.Close()
		}()
		nodeConn(conn1, dataPubSub)
	}()

	session, err := yamux.Server(conn2, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	t.Run("stream1", func(t *testing.T) {
		conn, err := session.Open()
		require.NoError(t, err)

		decoder := json.NewDecoder(conn)
		encoder := json.NewEncoder(conn)

		var info common.NodeInfoStruct
		require.NoError(t, decoder.Decode(&info))
		assert.Equal(t, "fan0", info.Identifier)
		assert.Equal(t, global.FirmwareVersion, info.Firmware)
		assert.Equal(t, []string{"motor_temp_c", "rail_3v3"}, info.HealthItems)
		assert.True(t, info.HasFan)

		// server knows motor_temp_c up to 0 and nothing of rail_3v3
		require.NoError(t, encoder.Encode(common.StringMsecMap{"motor_temp_c": 0}))
		require.NoError(t, encoder.Encode(0))

		var missData map[string][]common.DataTimeStruct
		require.NoError(t, decoder.Decode(&missData))
		assert.Equal(t, map[string][]common.DataTimeStruct{
			"motor_temp_c": {db.DataHis[0].DataTimeStruct},
			"rail_3v3":     {db.DataHis[1].DataTimeStruct},
		}, missData)

		var missStatusLogs []common.RowIdItemStatusStruct
		require.NoError(t, decoder.Decode(&missStatusLogs))
		assert.Equal(t, db.StatusLogs, missStatusLogs)

		// live feed. Taking passMu guarantees the subscription stands, so a
		// fresh reading flows as a transition plus a data point.
		passMu.Lock()
		v := 3.29
		saveHealthValue("rail_3v3", &v, custype.ToTimeMillisecond(time.Now()))
		passMu.Unlock()

		var msg common.ReceiveMsgStruct
		require.NoError(t, decoder.Decode(&msg))
		assert.Equal(t, common.MsgItemStatus, msg.Type)
		var statusMsg common.RowIdItemStatusStruct
		require.NoError(t, json.Unmarshal(msg.Body, &statusMsg))
		assert.Equal(t, "rail_3v3", statusMsg.ItemName)
		assert.Equal(t, common.Normal, statusMsg.Status)

		require.NoError(t, decoder.Decode(&msg))
		assert.Equal(t, common.MsgData, msg.Type)
		var dataMsg common.ItemNameDataTimeStruct
		require.NoError(t, json.Unmarshal(msg.Body, &dataMsg))
		assert.Equal(t, "rail_3v3", dataMsg.ItemName)
		assert.Equal(t, 3.29, dataMsg.Value)
	})

	t.Run("fan command", func(t *testing.T) {
		conn, err := session.Open()
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		_, err = conn.Write([]byte{common.MsgFanCommand})
		require.NoError(t, err)

		encoder := json.NewEncoder(conn)
		decoder := json.NewDecoder(conn)

		power, forward := 0.6, true
		require.NoError(t, encoder.Encode(common.FanCommandStruct{Power: &power, Forward: &forward}))
		var st common.FanStatusStruct
		require.NoError(t, decoder.Decode(&st))
		assert.InDelta(t, 0.6, st.Duty, 1e-9)
		assert.True(t, st.Forward)
		assert.False(t, st.Fault)

		require.NoError(t, encoder.Encode(common.FanCommandStruct{Stop: true}))
		require.NoError(t, decoder.Decode(&st))
		assert.Zero(t, st.Duty)
	})

	t.Run("terminal", func(t *testing.T) {
		conn, err := session.Open()
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		_, err = conn.Write([]byte{common.MsgPortTerminal})
		require.NoError(t, err)

		encoder := json.NewEncoder(conn)
		decoder := json.NewDecoder(conn)

		require.NoError(t, encoder.Encode(common.PortTerminalStruct{Command: "uptime"}))
		var reply string
		require.NoError(t, decoder.Decode(&reply))
		assert.Contains(t, reply, "ms)")

		require.NoError(t, encoder.Encode(common.PortTerminalStruct{Command: "status"}))
		require.NoError(t, decoder.Decode(&reply))
		assert.Contains(t, reply, "identifier: fan0")
		assert.Contains(t, reply, "link: up")
	})
}
