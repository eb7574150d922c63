// Package wal is the buffer pool's write-ahead log collaborator. The buffer
// pool core treats a *LogManager only as an opaque reference carried for
// future WAL-aware eviction (flush log records up to a frame's page-LSN
// before writing the page back); it never calls into it today. This package
// gives that reference a real, if intentionally small, implementation:
// transaction management, recovery, and flush-policy tuning are out of
// scope for the buffer pool core this repository builds.
package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corvusdb/corvusdb/core/storage/page"
)

// LSN is a log sequence number: one more than the byte offset of a record
// within the logical (single, unsegmented) log stream, so the first record
// gets LSN 1 and 0 stays free for InvalidLSN.
type LSN uint64

// InvalidLSN marks "no record written yet".
const InvalidLSN LSN = 0

// RecordType distinguishes the kind of change a Record describes.
type RecordType byte

const (
	RecordTypeUpdate RecordType = iota + 1
	RecordTypeNewPage
	RecordTypeFreePage
)

// Record is a single WAL entry. The buffer pool, were it to become
// WAL-aware, would record the LSN of the record covering a page's last
// change on the frame itself (Frame.SetLSN) and flush up to it before
// evicting a dirty frame.
type Record struct {
	LSN    LSN
	PageID page.ID
	Type   RecordType
	Data   []byte
}

func (r *Record) serialize() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(r.LSN))
	binary.Write(&buf, binary.LittleEndian, int32(r.PageID))
	buf.WriteByte(byte(r.Type))
	binary.Write(&buf, binary.LittleEndian, uint32(len(r.Data)))
	buf.Write(r.Data)
	return buf.Bytes()
}

// LogManager appends Records to a single append-only segment file and
// tracks the next LSN to hand out. Every Append is buffered in memory;
// Sync is what a caller (or the buffer pool, if extended to do so before
// evicting a dirty page) calls to make records durable.
type LogManager struct {
	mu       sync.Mutex
	file     *os.File
	buffer   bytes.Buffer
	nextLSN  LSN
	id       uuid.UUID
	log      *zap.Logger
}

// Open creates or appends to the single log segment under dir.
func Open(dir string, log *zap.Logger) (*LogManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: creating log directory %s: %w", dir, err)
	}
	id := uuid.New()
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: opening segment %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: stat segment %s: %w", path, err)
	}
	lm := &LogManager{
		file:    f,
		nextLSN: LSN(fi.Size()) + 1,
		id:      id,
		log:     log.With(zap.String("wal_id", id.String())),
	}
	lm.log.Info("wal opened", zap.String("path", path), zap.Uint64("next_lsn", uint64(lm.nextLSN)))
	return lm, nil
}

// Append buffers record and assigns it the next LSN. It does not guarantee
// durability; call Sync for that.
func (lm *LogManager) Append(record *Record) (LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	record.LSN = lm.nextLSN
	encoded := record.serialize()
	if _, err := lm.buffer.Write(encoded); err != nil {
		return InvalidLSN, fmt.Errorf("wal: buffering record: %w", err)
	}
	lm.nextLSN += LSN(len(encoded))
	lm.log.Debug("appended log record",
		zap.Uint64("lsn", uint64(record.LSN)),
		zap.Int32("page_id", int32(record.PageID)),
		zap.Uint8("type", uint8(record.Type)))
	return record.LSN, nil
}

// Sync flushes the in-memory buffer to the segment file and fsyncs it.
func (lm *LogManager) Sync() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.buffer.Len() > 0 {
		if _, err := lm.file.Write(lm.buffer.Bytes()); err != nil {
			return fmt.Errorf("wal: writing buffered records: %w", err)
		}
		lm.buffer.Reset()
	}
	return lm.file.Sync()
}

// Close syncs and releases the segment file handle.
func (lm *LogManager) Close() error {
	if err := lm.Sync(); err != nil {
		return err
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.file.Close()
}
