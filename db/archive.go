package db

import (
	"fmt"
	"log"
	"strings"
)

const (
	hourlySuffix = "_hourly"
	hourMillis   = 3600000
)

// ArchiveHourly folds raw samples older than cutoffTime into hourly means in
// a companion <table>_hourly table, then drops the raw rows. Re-running with
// the same cutoff is a no-op since the raw rows are already gone.
func ArchiveHourly(cutoffTime int64) {
	// Whole buckets only. A cutoff inside a bucket would store a partial
	// mean, and the replace on the next run would lose it.
	cutoffTime = cutoffTime / hourMillis * hourMillis
	tables, err := GetAllTables(db)
	if err != nil {
		log.Println(err)
		return
	}
	for _, table := range tables {
		if strings.HasSuffix(table, hourlySuffix) {
			continue
		}
		valid, err := IsValidTable(db, table)
		if err != nil {
			log.Printf("Error validating table %s: %v", table, err)
			continue
		}
		if !valid {
			continue
		}

		if err = archiveTable(table, cutoffTime); err != nil {
			log.Printf("Error archiving table %s: %v", table, err)
		}
	}
}

func archiveTable(table string, before int64) error {
	hourly := table + hourlySuffix
	_, err := db.Exec(`create table if not exists ` + hourly + `
(
    timestamp int              not null unique,
    value     double precision not null
);`)
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.Exec(fmt.Sprintf(`insert or replace into %s (timestamp, value)
select (timestamp/%d)*%d, avg(value) from %s where timestamp < ? group by timestamp/%d`,
		hourly, hourMillis, hourMillis, table, hourMillis), before)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(fmt.Sprintf("delete from"+" %s where timestamp < ?", table), before); err != nil {
		return err
	}
	return tx.Commit()
}
