// Command corvusdb-shell is an interactive REPL for poking at a buffer pool
// manager directly, without any storage-engine layers above it: new/fetch/
// unpin/flush/delete against raw page ids, backed by a real on-disk heap
// file. Useful for manually reproducing eviction/pinning scenarios.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/corvusdb/corvusdb/core/storage/bufferpool"
	"github.com/corvusdb/corvusdb/core/storage/disk"
	"github.com/corvusdb/corvusdb/core/storage/page"
	"github.com/corvusdb/corvusdb/pkg/logger"
	"github.com/corvusdb/corvusdb/pkg/metrics"
)

var (
	errColor  = color.New(color.FgRed, color.Bold)
	okColor   = color.New(color.FgGreen)
	infoColor = color.New(color.FgCyan)
)

func main() {
	heapFile := flag.String("heap", "corvusdb_shell.heap", "path to the backing heap file")
	poolSize := flag.Int("pool-size", 16, "frames per shard")
	shards := flag.Uint("shards", 1, "number of buffer pool shards")
	metricsEnabled := flag.Bool("metrics", false, "expose Prometheus metrics")
	metricsPort := flag.Int("metrics-port", 9465, "Prometheus metrics port, if --metrics")
	flag.Parse()

	zlog, err := logger.New(logger.Config{Level: "info", Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "corvusdb-shell: building logger:", err)
		os.Exit(1)
	}
	defer zlog.Sync()

	dm, err := disk.Open(*heapFile)
	if err != nil {
		zlog.Fatal("opening heap file", zap.Error(err))
	}
	defer dm.Close()

	tel, shutdownTel, err := metrics.New(metrics.Config{
		Enabled:        *metricsEnabled,
		ServiceName:    "corvusdb-shell",
		PrometheusPort: *metricsPort,
	})
	if err != nil {
		zlog.Fatal("building telemetry", zap.Error(err))
	}
	defer shutdownTel(context.Background())

	m, err := bufferpool.NewMetrics(tel.Meter)
	if err != nil {
		zlog.Fatal("registering buffer pool metrics", zap.Error(err))
	}

	pool := bufferpool.NewParallel(uint32(*shards), *poolSize, dm, nil, zlog, m)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          infoColor.Sprint("corvusdb> "),
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "corvusdb-shell: building readline:", err)
		os.Exit(1)
	}
	defer rl.Close()

	infoColor.Println("corvusdb-shell: interactive buffer pool manager. Type 'help' for commands.")
	repl(rl, pool)
}

func repl(rl *readline.Instance, pool *bufferpool.Parallel) {
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				okColor.Println("exiting.")
				return
			}
			errColor.Println("read error:", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		if !dispatch(pool, args) {
			return
		}
	}
}

// dispatch runs one command. It returns false when the shell should exit.
func dispatch(pool *bufferpool.Parallel, args []string) bool {
	switch strings.ToLower(args[0]) {
	case "new":
		id, _, ok, err := pool.NewPage()
		if err != nil {
			errColor.Println("error:", err)
		} else if !ok {
			errColor.Println("pool full: no evictable frame")
		} else {
			okColor.Printf("allocated page %d (pinned)\n", id)
		}

	case "fetch":
		id, ok := parsePageID(args)
		if !ok {
			return true
		}
		frame, found, err := pool.FetchPage(id)
		if err != nil {
			errColor.Println("error:", err)
		} else if !found {
			errColor.Println("not resident and pool full")
		} else {
			okColor.Printf("fetched page %d: dirty=%v pin_count=%d\n", id, frame.IsDirty(), frame.GetPinCount())
		}

	case "unpin":
		if len(args) < 3 {
			errColor.Println("usage: unpin <page_id> <true|false>")
			return true
		}
		id, ok := parsePageID(args)
		if !ok {
			return true
		}
		dirty := args[2] == "true"
		defer func() {
			if r := recover(); r != nil {
				errColor.Println("error:", r)
			}
		}()
		okColor.Printf("unpin ok=%v\n", pool.UnpinPage(id, dirty))

	case "flush":
		id, ok := parsePageID(args)
		if !ok {
			return true
		}
		flushed, err := pool.FlushPage(id)
		if err != nil {
			errColor.Println("error:", err)
		} else {
			okColor.Printf("flushed=%v\n", flushed)
		}

	case "flush-all":
		if err := pool.FlushAllPages(); err != nil {
			errColor.Println("error:", err)
		} else {
			okColor.Println("ok")
		}

	case "delete":
		id, ok := parsePageID(args)
		if !ok {
			return true
		}
		deleted, err := pool.DeletePage(id)
		if err != nil {
			errColor.Println("error:", err)
		} else {
			okColor.Printf("deleted=%v\n", deleted)
		}

	case "size":
		okColor.Printf("pool size: %d frames\n", pool.GetPoolSize())

	case "help":
		fmt.Println("commands:")
		fmt.Println("  new                       allocate and pin a fresh page")
		fmt.Println("  fetch <page_id>           pin a page, loading it if necessary")
		fmt.Println("  unpin <page_id> <bool>    release a pin, optionally marking dirty")
		fmt.Println("  flush <page_id>           write a page back unconditionally")
		fmt.Println("  flush-all                 write back every resident page")
		fmt.Println("  delete <page_id>          remove an unpinned page")
		fmt.Println("  size                      total frame count")
		fmt.Println("  help / exit / quit")

	case "exit", "quit":
		okColor.Println("exiting.")
		return false

	default:
		errColor.Printf("unknown command %q, type 'help'\n", args[0])
	}
	return true
}

func parsePageID(args []string) (page.ID, bool) {
	if len(args) < 2 {
		errColor.Println("usage: <cmd> <page_id>")
		return 0, false
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		errColor.Println("invalid page id:", args[1])
		return 0, false
	}
	return page.ID(n), true
}
