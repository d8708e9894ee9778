package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/John-Robertt/burstsort/internal/domain"
)

// StateDirName 是 <burstsRoot> 下存放内部状态（journal.db / report.json）的目录名。
const StateDirName = ".burstsort"

// FileName 是 journal 数据库文件名。
const FileName = "journal.db"

// Entry 是一条文件级审计记录：某次运行把某个文件放进了哪个 burst、结果如何。
type Entry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"index;not null" json:"run_id"`
	Burst      string    `gorm:"index;not null" json:"burst"`
	Anchor     string    `json:"anchor"`
	Src        string    `gorm:"not null" json:"src"`
	Dst        string    `json:"dst"`
	Status     string    `gorm:"not null" json:"status"`
	CopiedBack bool      `json:"copied_back"`
	ErrorCode  string    `json:"error_code,omitempty"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store 提供 <burstsRoot>/.burstsort/journal.db 的读写。
//
// 约束：
// - 只在 apply 模式下打开（dry-run 不落盘）
// - 只追加，不更新已有记录
type Store struct {
	Root string // <burstsRoot>
	db   *gorm.DB
}

// Path 返回 root 对应的 journal 文件路径。
func Path(root string) string {
	return filepath.Join(filepath.Clean(strings.TrimSpace(root)), StateDirName, FileName)
}

// Open 打开（必要时创建）journal。
func Open(root string) (*Store, error) {
	root = filepath.Clean(strings.TrimSpace(root))
	if root == "" || root == "." {
		return nil, errors.New("journal: root 不能为空")
	}
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: 打开 %q 失败：%w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("journal: 迁移失败：%w", err)
	}
	return &Store{Root: root, db: db}, nil
}

// OpenExisting 只打开已经存在的 journal，不创建任何文件；用于查询历史。
func OpenExisting(root string) (*Store, error) {
	if _, err := os.Stat(Path(root)); err != nil {
		return nil, err
	}
	return Open(root)
}

// Record 把一个 burst 的文件结果批量写入（单事务）。
func (s *Store) Record(runID string, item domain.ItemResult) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("journal: run_id 不能为空")
	}
	if len(item.Files) == 0 {
		return nil
	}

	now := time.Now().UTC()
	entries := make([]Entry, 0, len(item.Files))
	for _, f := range item.Files {
		e := Entry{
			RunID:      runID,
			Burst:      item.Burst,
			Anchor:     item.Anchor,
			Src:        f.Src,
			Dst:        f.Dst,
			Status:     f.Status,
			CopiedBack: f.CopiedBack,
			ErrorCode:  f.ErrorCode,
			ErrorMsg:   f.Error,
			CreatedAt:  now,
		}
		// 未填写文件级原因时退回 item 的首个原因。
		if e.ErrorCode == "" && f.Status == domain.FileStatusFailed {
			e.ErrorCode = item.ErrorCode
		}
		entries = append(entries, e)
	}
	return s.db.Create(&entries).Error
}

// ByRun 按写入顺序返回某次运行的全部记录。
func (s *Store) ByRun(runID string) ([]Entry, error) {
	var out []Entry
	err := s.db.Where("run_id = ?", runID).Order("id").Find(&out).Error
	return out, err
}

// ByBurst 返回某个 burst 目录的历史记录（跨运行）。
func (s *Store) ByBurst(burst string) ([]Entry, error) {
	var out []Entry
	err := s.db.Where("burst = ?", burst).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
