package controller

import (
	"encoding/json"
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"
	"go.uber.org/zap"

	"github.com/widdakay/fan-controller/common"
	"github.com/widdakay/fan-controller/db"
	"github.com/widdakay/fan-controller/fan"
	"github.com/widdakay/fan-controller/global"
	"github.com/widdakay/fan-controller/pkg/pubsub"
)

func client(dataSub *pubsub.PubSub) {
	conn, err := net.Dial("tcp", global.Config.Server)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	logger.Debug("dial to server",
		zap.String("server", global.Config.Server), zap.Stringer("local_addr", conn.LocalAddr()))

	nodeConn(conn, dataSub)
}

// nodeConn runs one link session: hello, catch-up, then live feed until the
// session dies. The server opens all further streams; the first byte of each
// picks the handler.
func nodeConn(conn net.Conn, dataSub *pubsub.PubSub) {
	cnf := yamux.DefaultConfig()
	cnf.EnableKeepAlive = true
	cnf.ConnectionWriteTimeout = 30 * time.Second
	session, err := yamux.Client(conn, cnf)
	if err != nil {
		logger.Error("yamux client", zap.Error(err))
		return
	}
	defer func() { _ = session.Close() }()
	stream1, err := session.Accept()
	if err != nil {
		logger.Error("accept feed stream", zap.Error(err))
		return
	}
	defer func() { _ = stream1.Close() }()
	var (
		encoder = json.NewEncoder(stream1)
		decoder = json.NewDecoder(stream1)
	)

	// send nodeInfo
	if err = encoder.Encode(nodeInfo); err != nil {
		logger.Error("send node info", zap.Error(err))
		return
	}

	// receive latest data time per health series
	var itemsLatest common.StringMsecMap
	if err = decoder.Decode(&itemsLatest); err != nil {
		logger.Error("receive items latest", zap.Error(err))
		return
	}
	// receive status log rowId
	var latestStatusLogRowId int64
	if err = decoder.Decode(&latestStatusLogRowId); err != nil {
		logger.Error("receive status rowid", zap.Error(err))
		return
	}

	// lock database operation; nothing may land between the catch-up query
	// and the subscription or the server would miss it
	passMu.Lock()

	{
		var missData = make(map[string][]common.DataTimeStruct)
		for _, item := range healthItems {
			ds, err := db.GetDataHistory(item.name, itemsLatest[item.name].ToInt64(), 0)
			if err != nil {
				logger.Error("query missed data", zap.String("item_name", item.name), zap.Error(err))
				passMu.Unlock()
				return
			}
			if len(ds) > 0 {
				missData[item.name] = ds
			}
		}
		// send missData
		if err = encoder.Encode(missData); err != nil {
			logger.Error("send missed data", zap.Error(err))
			passMu.Unlock()
			return
		}

		missStatusLogs, err := db.GetItemStatusLogAfter(latestStatusLogRowId)
		if err != nil {
			logger.Error("query missed status logs", zap.Error(err))
			passMu.Unlock()
			return
		}
		// send missStatusLogs
		if err = encoder.Encode(missStatusLogs); err != nil {
			logger.Error("send missed status logs", zap.Error(err))
			passMu.Unlock()
			return
		}
	}
	subscriber := pubsub.NewSubscriber(session.CloseChan(), stream1)

	dataSub.SubscribeTopic(subscriber, nil)
	defer dataSub.Evict(subscriber)

	passMu.Unlock()

	linkUp.Store(true)
	leds.Set(fan.LedOrange, true)
	logger.Info("link up", zap.String("server", global.Config.Server))
	defer func() {
		linkUp.Store(false)
		leds.Set(fan.LedOrange, false)
		logger.Info("link down")
	}()

	go acceptStreams(session)
	// close the session if stream1 is closed
	_, _ = io.Copy(io.Discard, stream1)
}

func acceptStreams(session *yamux.Session) {
	defer func() { _ = session.Close() }()
	for {
		stream, err := session.Accept()
		if err != nil {
			return
		}
		go func() {
			defer func() { _ = stream.Close() }()
			var buf = make([]byte, 1)
			if _, err := stream.Read(buf); err != nil {
				logger.Error("read stream type", zap.Error(err))
				return
			}
			switch buf[0] {
			case common.MsgPortTerminal:
				portTerminal(stream)
			case common.MsgFanCommand:
				fanCommand(stream)
			default:
				logger.Warn("unknown stream type", zap.Uint8("type", buf[0]))
			}
		}()
	}
}

// portTerminal relays console lines: one command in, one reply out, until
// the operator closes the stream.
func portTerminal(conn net.Conn) {
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var msg common.PortTerminalStruct
		if err := decoder.Decode(&msg); err != nil {
			if err != io.EOF {
				logger.Error("terminal decode", zap.Error(err))
			}
			return
		}
		logger.Debug("terminal command", zap.String("command", msg.Command))
		if err := encoder.Encode(runConsoleCommand(msg.Command)); err != nil {
			logger.Error("terminal encode", zap.Error(err))
			return
		}
	}
}

// fanCommand executes remote fan orders and acks each with a fresh status
// snapshot. A node without a fan acks with a zero status so the operator
// sees the command landed nowhere.
func fanCommand(conn net.Conn) {
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var cmd common.FanCommandStruct
		if err := decoder.Decode(&cmd); err != nil {
			if err != io.EOF {
				logger.Error("fan command decode", zap.Error(err))
			}
			return
		}
		var st common.FanStatusStruct
		if fanCtl != nil {
			if err := fanCtl.Apply(cmd); err != nil {
				logger.Error("fan command failed", zap.Error(err))
			}
			st = fanCtl.Status()
		}
		if err := encoder.Encode(st); err != nil {
			logger.Error("fan command ack", zap.Error(err))
			return
		}
	}
}
