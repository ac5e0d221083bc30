package core

import (
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

var ridSeq uint64

// newReqID returns a short id unique within the process: base36 timestamp
// and sequence plus two random chars.
func newReqID() string {
	n := atomic.AddUint64(&ridSeq, 1)
	return strconv.FormatInt(time.Now().UnixNano(), 36) +
		"-" + strconv.FormatUint(n, 36) + randSuffix(2)
}

func randSuffix(n int) string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alpha[rand.Intn(len(alpha))])
	}
	return b.String()
}

// tokenizeCommandLine splits command text on whitespace with single/double
// quoting and backslash escapes, so multi-word arguments like cron specs
// survive as one token:
//
//	/set dishes "*/5 * * * *" alice
func tokenizeCommandLine(s string) []string {
	var (
		out   []string
		cur   []rune
		quote rune
		esc   bool
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case esc:
			cur = append(cur, r)
			esc = false
		case r == '\\':
			esc = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur = append(cur, r)
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			flush()
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}
