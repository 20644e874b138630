package persistence

import "backpack-grid-bot-go/internal/models"

// Journal 是引擎动作的追加式日志，用于事后还原网格历史。
// 网格本身不持久化——进程重启后总是从交易所状态重建。
type Journal interface {
	// Record 追加一条日志，失败不应影响交易流程。
	Record(entry models.JournalEntry) error

	// Recent 返回最近的 limit 条日志，按时间升序。
	Recent(limit int) ([]models.JournalEntry, error)

	// Close 关闭底层存储。
	Close() error
}

// NopJournal 在未配置日志路径时使用，丢弃所有记录。
type NopJournal struct{}

func (NopJournal) Record(models.JournalEntry) error { return nil }

func (NopJournal) Recent(int) ([]models.JournalEntry, error) { return nil, nil }

func (NopJournal) Close() error { return nil }
