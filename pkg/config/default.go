// Global config for the hash index and its buffer pool.
package config

// Name of the database.
const DBName = "xhash"

// Prompt printed by REPL.
const Prompt = DBName + "> "

// The maximum number of frames that can be in the buffer pool at once.
const MaxPagesInBuffer = 32

// DirectoryArraySize is the fixed number of slots the directory page's
// arrays are sized for. Must be a power of two; bounds global depth to
// log2(DirectoryArraySize).
const DirectoryArraySize = 512

// Return prompt if requested, else "".
func GetPrompt(flag bool) string {
	if flag {
		return Prompt
	}
	return ""
}
