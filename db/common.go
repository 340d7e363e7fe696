package db

import (
	"database/sql"
	"log"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/widdakay/fan-controller/common"
)

var (
	db *sql.DB
)

// Init opens the node database and makes sure the status log exists. The
// status log keeps its insertion ROWID as the catch-up cursor handed to the
// server, so the table must stay an ordinary rowid table.
func Init(dsn string) {
	var err error
	db, err = sql.Open("sqlite3", dsn)
	if err != nil {
		log.Fatal(err)
	}
	_, err = db.Exec(`create table if not exists item_status_log
(
    item_name  text not null,
    status     text not null,
    changed_at int  not null
);`)
	if err != nil {
		log.Fatal(err)
	}
}

func Close() {
	_ = db.Close()
}

func checkResultLastInsertId(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func MakeSureTableExist(name string) (err error) {
	_, err = db.Exec(`create table if not exists ` + name + `
(
    timestamp int              not null,
    value     double precision not null
);
create index if not exists ` + name + `_timestamp_index on ` + name + ` (timestamp);`)
	return err
}

var (
	StatusLogs = []common.RowIdItemStatusStruct{
		{
			RowId: 1,
			ItemStatusStruct: common.ItemStatusStruct{
				ItemName:           "motor_temp_c",
				StatusChangeStruct: common.StatusChangeStruct{Status: common.Normal, ChangedAt: 1100},
			},
		},
		{
			RowId: 2,
			ItemStatusStruct: common.ItemStatusStruct{
				ItemName:           "rail_3v3",
				StatusChangeStruct: common.StatusChangeStruct{Status: common.Abnormal, ChangedAt: 1200},
			},
		},
	}
	DataHis = []common.ItemNameDataTimeStruct{
		{
			ItemName:       "motor_temp_c",
			DataTimeStruct: common.DataTimeStruct{Value: 42.5, Millisecond: 1100},
		},
		{
			ItemName:       "rail_3v3",
			DataTimeStruct: common.DataTimeStruct{Value: 3.31, Millisecond: 1100},
		},
	}
)

func InitData(t *testing.T) {
	_, err := db.Exec(`
delete from item_status_log;
drop table if exists motor_temp_c;
drop table if exists motor_temp_c_hourly;
drop table if exists rail_3v3;
drop table if exists rail_3v3_hourly;
drop table if exists mcu_temp_c;
drop table if exists mcu_temp_c_hourly;
`)
	require.NoError(t, err)

	for _, statusLog := range StatusLogs {
		rowId, err := SaveItemStatusLog(statusLog.ItemName, statusLog.Status, statusLog.ChangedAt.ToInt64())
		require.NoError(t, err)
		require.EqualValues(t, statusLog.RowId, rowId)
	}
	var tmp = make(map[string]struct{})
	for _, data := range DataHis {
		if _, ok := tmp[data.ItemName]; !ok {
			err = MakeSureTableExist(data.ItemName)
			require.NoError(t, err)
		}
		tmp[data.ItemName] = struct{}{}
		err = SaveData(data.ItemName, data.Value, data.Millisecond.ToInt64())
		require.NoError(t, err)
	}
}
