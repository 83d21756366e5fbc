package util

import (
	"crypto/sha256"
	"fmt"
	"strconv"
)

// JournalKey returns the journal key for one sequence of a session.
// The session is reduced to a short hash so arbitrary labels give bounded keys.
func JournalKey(prefix, session string, seq uint64) string {
	sum := sha256.Sum256([]byte(session))
	return fmt.Sprintf("%s:%x:%s", prefix, sum[:8], strconv.FormatUint(seq, 10)) // prefix + ":" + 16 hex chars + ":" + seq
}
