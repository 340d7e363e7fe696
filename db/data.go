package db

import (
	"database/sql"

	"github.com/widdakay/fan-controller/common"
)

// SaveData appends one sample to the item's series table. The table name
// comes from the health-item registry, which only admits [0-9a-z_] names.
func SaveData(itemName string, val float64, msec int64) error {
	_, err := db.Exec("insert"+" into "+itemName+" (timestamp, value) VALUES (?,?)", msec, val)
	return err
}

// GetDataHistory returns samples with start < timestamp < end in time order.
// A zero end means no upper bound.
func GetDataHistory(itemName string, start, end int64) ([]common.DataTimeStruct, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if end == 0 {
		rows, err = db.Query("select"+" timestamp, value from "+itemName+" where timestamp>? order by timestamp", start)
	} else {
		rows, err = db.Query("select"+" timestamp, value from "+itemName+" where timestamp>? and timestamp<? order by timestamp", start, end)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var (
		d  common.DataTimeStruct
		ds []common.DataTimeStruct
	)
	for rows.Next() {
		if err = rows.Scan(&d.Millisecond, &d.Value); err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}
