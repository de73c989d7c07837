package bboltx

import (
	"go.etcd.io/bbolt"
)

// View executes a read-only transaction.
//
// fn may use the Must() helpers; panics they raise are converted back to
// errors in View()'s return value.
func View(db *bbolt.DB, fn func(tx *bbolt.Tx)) error {
	return db.View(func(tx *bbolt.Tx) (err error) {
		defer Recover(&err)
		fn(tx)
		return nil
	})
}

// Update executes a read/write transaction.
//
// fn may use the Must() helpers; panics they raise are converted back to
// errors in Update()'s return value.
func Update(db *bbolt.DB, fn func(tx *bbolt.Tx)) error {
	return db.Update(func(tx *bbolt.Tx) (err error) {
		defer Recover(&err)
		fn(tx)
		return nil
	})
}
