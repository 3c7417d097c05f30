// cmd/sdsbench/main.go
//
// sdsbench - small exerciser for the libsds data structures.
//
// Usage:
//
//	sdsbench [count]
//
// Inserts count uint64 keys (default 10000) into a plain B+tree and a cow
// B+tree, verifies both, and reports basic timing.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"libsds/pkg/btree"
	"libsds/pkg/cowbtree"
	"libsds/pkg/sds"
)

func main() {
	count := 10000
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid count: %v\n", err)
			os.Exit(1)
		}
		count = n
	}

	if err := runPlain(count); err != nil {
		fmt.Fprintf(os.Stderr, "plain btree: %v\n", err)
		os.Exit(1)
	}
	if err := runCow(count); err != nil {
		fmt.Fprintf(os.Stderr, "cow btree: %v\n", err)
		os.Exit(1)
	}
}

func uint64Callbacks() sds.Callbacks[uint64, uint64] {
	return sds.Callbacks[uint64, uint64]{
		Compare: func(a, b uint64) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		},
		KeyDup:    func(k uint64) uint64 { return k },
		KeyFree:   func(uint64) {},
		ValueFree: func(uint64) {},
	}
}

func runPlain(count int) error {
	inst, err := btree.Init(uint64Callbacks(), btree.Options{})
	if err != nil {
		return err
	}
	defer inst.Destroy()

	start := time.Now()
	for i := 0; i < count; i++ {
		if res := inst.Insert(uint64(i), uint64(i)); !res.Ok() {
			return res
		}
	}
	if res := inst.Verify(); !res.Ok() {
		return res
	}
	fmt.Printf("btree: inserted %d keys in %s\n", count, time.Since(start))
	return nil
}

func runCow(count int) error {
	cb := sds.CowCallbacks[uint64, uint64]{
		Callbacks: uint64Callbacks(),
		ValueDup:  func(v uint64) uint64 { return v },
	}
	inst, err := cowbtree.CowInit(cb)
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < count; i++ {
		if res := cowbtree.CowInsertAtomic(inst, uint64(i), uint64(i)); !res.Ok() {
			return res
		}
	}
	if res := cowbtree.CowVerify(inst); !res.Ok() {
		return res
	}
	fmt.Printf("cowbtree: inserted %d keys in %s\n", count, time.Since(start))

	reader := cowbtree.RotxnBegin(inst)
	defer cowbtree.RotxnClose(reader)
	if _, res := cowbtree.CowRetrieve(reader, uint64(count/2)); res != sds.KeyPresent {
		return res
	}
	return nil
}
