// Package nffs implements a log-structured filesystem for raw NOR flash.
//
// The on-flash layout, in-memory hash index, garbage collector and restore
// procedure are modeled after the nffs format used in embedded RTOS
// firmware: files and directories are represented as versioned records
// dispersed across a small number of erase-granularity regions, one of
// which is always held in reserve as GC scratch space. A single mutex
// serializes every operation; there is no internal concurrency.
package nffs
