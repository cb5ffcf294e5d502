//go:build !windows && !darwin

package rlimit

import (
	"log"
	"syscall"
)

// Raise bumps the process's open file descriptor limit to its hard
// ceiling. CacheFS holds one file descriptor per open block file plus
// the metadata store's file handles, so a low default ulimit can
// starve the block cache well before max_cache_size is reached.
func Raise() {
	var limits syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limits)
	if err != nil {
		log.Println("Failed to find rlimit from getrlimit:", err)
		return
	}

	log.Printf("Initial RLIMIT_NOFILE cur: %d max: %d",
		limits.Cur, limits.Max)

	limits.Cur = limits.Max

	log.Printf("Setting RLIMIT_NOFILE cur: %d max: %d",
		limits.Cur, limits.Max)

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &limits)
	if err != nil {
		log.Println("Failed to set rlimit:", err)
		return
	}
}
