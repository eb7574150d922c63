// Package commonutils holds small cross-cutting helpers shared by the
// storage packages.
package commonutils

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

// GoID extracts the running goroutine's id by parsing runtime.Stack's
// header line. It exists purely for diagnostic logging; nothing in the
// buffer pool's correctness depends on it.
func GoID() int64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// PrintCaller logs which function, file, and line acquired/released a page
// latch. skip=1 names PrintCaller's immediate caller; skip=2 names the
// caller of that function.
func PrintCaller(msg string, pageID int32, skip int) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		fmt.Println("no caller info")
		return
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	fmt.Printf("%s called from %s:%d (%s) for pageID: %d, GID: %d\n", msg, filepath.Base(file), line, name, pageID, GoID())
}
