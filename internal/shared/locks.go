package shared

import "fmt"

// POLockKey builds the redis key serialising receive and match for one purchase order.
func POLockKey(poID int64) string {
	return fmt.Sprintf("threeway:po:%d:lock", poID)
}

// ExceptionLockKey builds the redis key guarding a single match exception.
func ExceptionLockKey(exceptionID int64) string {
	return fmt.Sprintf("threeway:exception:%d:lock", exceptionID)
}
