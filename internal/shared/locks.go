package shared

import "fmt"

// ReconcileLockKey builds the redis key guarding a reconciliation sweep.
func ReconcileLockKey(sourceModule string) string {
	if sourceModule == "" {
		sourceModule = "all"
	}
	return fmt.Sprintf("gl:reconcile:%s:lock", sourceModule)
}
