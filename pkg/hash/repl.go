package hash

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"xhash/pkg/repl"
)

// TableRepl builds a REPL wired to a single int32/int32
// ExtendibleHashTable, trimmed to the hash index's operations, with no
// create/table-selection commands, since this module serves exactly
// one index.
func TableRepl(table *ExtendibleHashTable[int32, int32]) *repl.REPL {
	r := repl.NewRepl()

	r.AddCommand(".find", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleFind(table, payload)
	}, "Find all values for a key. usage: .find <key>")

	r.AddCommand(".insert", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handleInsert(table, payload)
	}, "Insert a key/value pair. usage: .insert <key> <value>")

	r.AddCommand(".delete", func(payload string, _ *repl.REPLConfig) (string, error) {
		return "", handleDelete(table, payload)
	}, "Delete a key/value pair. usage: .delete <key> <value>")

	r.AddCommand(".depth", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleDepth(table, payload)
	}, "Print the table's current global depth. usage: .depth")

	r.AddCommand(".verify", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleVerify(table, payload)
	}, "Check the directory's D1-D4 invariants. usage: .verify")

	r.AddCommand(".select", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleSelect(table, payload)
	}, "Print every live entry in the table. usage: .select")

	r.AddCommand(".bucket", func(payload string, _ *repl.REPLConfig) (string, error) {
		return handleBucket(table, payload)
	}, "Print occupied/readable/tombstone counts for a directory slot. usage: .bucket <slot>")

	return r
}

func handleFind(table *ExtendibleHashTable[int32, int32], payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: .find <key>")
	}
	key, err := parseInt32(fields[1])
	if err != nil {
		return "", fmt.Errorf("find error: %v", err)
	}
	values, err := table.GetValue(nil, key)
	if err != nil {
		return "", fmt.Errorf("find error: %v", err)
	}
	if len(values) == 0 {
		return fmt.Sprintf("no entries found for key %d\n", key), nil
	}
	w := new(strings.Builder)
	for _, v := range values {
		fmt.Fprintf(w, "(%d, %d)\n", key, v)
	}
	return w.String(), nil
}

func handleInsert(table *ExtendibleHashTable[int32, int32], payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return fmt.Errorf("usage: .insert <key> <value>")
	}
	key, err := parseInt32(fields[1])
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	value, err := parseInt32(fields[2])
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	ok, err := table.Insert(nil, key, value)
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	if !ok {
		return fmt.Errorf("insert error: (%d, %d) already present, or the directory is saturated", key, value)
	}
	return nil
}

func handleDelete(table *ExtendibleHashTable[int32, int32], payload string) error {
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		return fmt.Errorf("usage: .delete <key> <value>")
	}
	key, err := parseInt32(fields[1])
	if err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	value, err := parseInt32(fields[2])
	if err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	ok, err := table.Remove(nil, key, value)
	if err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	if !ok {
		return fmt.Errorf("delete error: (%d, %d) not found", key, value)
	}
	return nil
}

func handleDepth(table *ExtendibleHashTable[int32, int32], payload string) (string, error) {
	depth, err := table.GetGlobalDepth()
	if err != nil {
		return "", fmt.Errorf("depth error: %v", err)
	}
	return fmt.Sprintf("global depth: %d\n", depth), nil
}

func handleVerify(table *ExtendibleHashTable[int32, int32], payload string) (string, error) {
	if err := table.VerifyIntegrity(); err != nil {
		return "", fmt.Errorf("verify error: %v", err)
	}
	return "ok\n", nil
}

func handleSelect(table *ExtendibleHashTable[int32, int32], payload string) (string, error) {
	pairs, err := table.Select()
	if err != nil {
		return "", fmt.Errorf("select error: %v", err)
	}
	w := new(strings.Builder)
	printPairs(pairs, w)
	return w.String(), nil
}

func handleBucket(table *ExtendibleHashTable[int32, int32], payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: .bucket <slot>")
	}
	slot, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return "", fmt.Errorf("bucket error: %v", err)
	}
	occupied, readable, tombstones, localDepth, err := table.BucketStats(uint32(slot))
	if err != nil {
		return "", fmt.Errorf("bucket error: %v", err)
	}
	return fmt.Sprintf("slot %d: local depth %d, %d occupied (%d readable, %d tombstones)\n",
		slot, localDepth, occupied, readable, tombstones), nil
}

func printPairs(pairs []Pair[int32, int32], w io.Writer) {
	for _, p := range pairs {
		fmt.Fprintf(w, "(%d, %d)\n", p.Key, p.Value)
	}
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
