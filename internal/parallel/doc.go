// Package parallel provides the default job system used to record frame graph
// ranges on worker goroutines.
package parallel
