package entity

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// syntheticSeq makes synthesized IDs unique within the process even when
// two records share a millisecond and random suffix.
var syntheticSeq atomic.Uint64

// SyntheticID returns "<prefix>-<unix-millis>-<alnum>" for a record the
// backend sent without an identifier.
func SyntheticID(prefix string) string {
	return syntheticIDAt(prefix, time.Now())
}

func syntheticIDAt(prefix string, now time.Time) string {
	var suffix [4]byte
	for i := range suffix {
		suffix[i] = base36[rand.IntN(len(base36))]
	}
	seq := strconv.FormatUint(syntheticSeq.Add(1), 36)
	return fmt.Sprintf("%s-%d-%s%s", prefix, now.UnixMilli(), suffix[:], seq)
}
