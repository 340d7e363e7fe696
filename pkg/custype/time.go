// Package custype carries timestamps as integer milliseconds, the unit the
// wire messages and the sqlite series tables share.
package custype

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

type TimeMillisecond int64

func ToTimeMillisecond(t time.Time) TimeMillisecond {
	return TimeMillisecond(t.UnixMilli())
}
func (t TimeMillisecond) ToInt64() int64 {
	return int64(t)
}
func (t TimeMillisecond) ToTime() time.Time {
	return time.UnixMilli(int64(t))
}
func (t TimeMillisecond) Value() (driver.Value, error) {
	return int64(t), nil
}
func (t *TimeMillisecond) Scan(src any) error {
	switch s := src.(type) {
	case time.Time:
		*t = ToTimeMillisecond(s)
	case int64:
		*t = TimeMillisecond(s)
	case nil:
		*t = 0
	default:
		return fmt.Errorf("unsupported Scan, storing driver.Value type %T into type TimeMillisecond", src)
	}
	return nil
}
func (t TimeMillisecond) String() string {
	return strconv.FormatInt(int64(t), 10)
}
