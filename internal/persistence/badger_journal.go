package persistence

import (
	"backpack-grid-bot-go/internal/models"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"
)

// badgerJournal 是 Journal 的 BadgerDB 实现。每个进程启动分配一个
// base62 编码的会话ID，键在会话内按序号递增，保证迭代顺序即写入顺序。
type badgerJournal struct {
	db      *badger.DB
	session string
	seq     uint64
}

const journalPrefix = "evt:"

// NewBadgerJournal 打开（或创建）给定路径的日志数据库。
func NewBadgerJournal(path string) (Journal, error) {
	opts := badger.DefaultOptions(path)
	// Badger自身的日志会混进应用日志，关掉；错误仍会从操作中返回。
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	return &badgerJournal{
		db:      db,
		session: string(base62.FormatInt(time.Now().UnixMilli())),
	}, nil
}

// Record 追加一条日志。
func (j *badgerJournal) Record(entry models.JournalEntry) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	seq := atomic.AddUint64(&j.seq, 1)
	key := []byte(fmt.Sprintf("%s%s:%012d", journalPrefix, j.session, seq))

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Recent 返回最近的 limit 条日志，按时间升序。
func (j *badgerJournal) Recent(limit int) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(journalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry models.JournalEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 键序只保证会话内有序，跨会话按时间排一次。
	sort.Slice(entries, func(i, k int) bool {
		return entries[i].Time.Before(entries[k].Time)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Close 关闭数据库。
func (j *badgerJournal) Close() error {
	return j.db.Close()
}
