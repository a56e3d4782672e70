package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
)

// 句子状态。
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// Document 标识一次转换的源文档。
type Document struct {
	Key      string
	Source   string
	Engine   string
	Language string
}

// DocumentFor 以文档绝对路径、引擎变体与语言组成文档标识，
// 换引擎或语言时视为新文档。
func DocumentFor(source, engine, variant, language string) Document {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	return Document{
		Key:      fmt.Sprintf("%s|%s-%s|%s", source, engine, variant, language),
		Source:   source,
		Engine:   engine,
		Language: language,
	}
}

// Progress 是一句话的转换记录。
type Progress struct {
	Name     string
	Status   string
	Seconds  float64
	Error    string
	Attempts int
}

// Summary 汇总文档的转换情况。
type Summary struct {
	Done    int
	Failed  int
	Seconds float64
}

// ProgressStore 记录逐句转换进度，重跑时跳过已完成的句子。
type ProgressStore struct {
	db    *DB
	docID int64
}

// NewProgressStore 注册文档（已存在则复用）并返回其进度存储。
func NewProgressStore(db *DB, doc Document) (*ProgressStore, error) {
	_, err := db.Exec(
		`INSERT INTO documents (doc_key, source, engine, language) VALUES (?, ?, ?, ?)
		 ON CONFLICT(doc_key) DO NOTHING`,
		doc.Key, doc.Source, doc.Engine, doc.Language,
	)
	if err != nil {
		return nil, fmt.Errorf("[progress] 注册文档失败: %w", err)
	}

	var id int64
	if err := db.QueryRow(`SELECT id FROM documents WHERE doc_key = ?`, doc.Key).Scan(&id); err != nil {
		return nil, fmt.Errorf("[progress] 查询文档失败: %w", err)
	}
	return &ProgressStore{db: db, docID: id}, nil
}

// MarkDone 记录一句话转换成功。
func (s *ProgressStore) MarkDone(name string, seconds float64) error {
	return s.upsert(name, StatusDone, seconds, "")
}

// MarkFailed 记录一句话转换失败。
func (s *ProgressStore) MarkFailed(name string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.upsert(name, StatusFailed, 0, msg)
}

func (s *ProgressStore) upsert(name, status string, seconds float64, msg string) error {
	_, err := s.db.Exec(
		`INSERT INTO sentence_progress (document_id, name, status, seconds, error, attempts)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(document_id, name) DO UPDATE SET
			status = excluded.status,
			seconds = excluded.seconds,
			error = excluded.error,
			attempts = sentence_progress.attempts + 1,
			updated_at = CURRENT_TIMESTAMP`,
		s.docID, name, status, seconds, msg,
	)
	if err != nil {
		return fmt.Errorf("[progress] 写入 %s 进度失败: %w", name, err)
	}
	return nil
}

// IsDone 判断一句话是否已成功转换。
func (s *ProgressStore) IsDone(name string) (bool, error) {
	p, err := s.Get(name)
	if err != nil {
		return false, err
	}
	return p != nil && p.Status == StatusDone, nil
}

// Get 返回一句话的记录，不存在时返回 nil。
func (s *ProgressStore) Get(name string) (*Progress, error) {
	p := &Progress{Name: name}
	err := s.db.QueryRow(
		`SELECT status, seconds, error, attempts FROM sentence_progress WHERE document_id = ? AND name = ?`,
		s.docID, name,
	).Scan(&p.Status, &p.Seconds, &p.Error, &p.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[progress] 查询 %s 失败: %w", name, err)
	}
	return p, nil
}

// Failed 按名称顺序列出失败的句子。
func (s *ProgressStore) Failed() ([]Progress, error) {
	rows, err := s.db.Query(
		`SELECT name, status, seconds, error, attempts FROM sentence_progress
		 WHERE document_id = ? AND status = ? ORDER BY id`,
		s.docID, StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("[progress] 查询失败记录失败: %w", err)
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.Name, &p.Status, &p.Seconds, &p.Error, &p.Attempts); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Summary 统计文档的完成与失败数量以及累计时长。
func (s *ProgressStore) Summary() (Summary, error) {
	var sum Summary
	err := s.db.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'done' THEN seconds ELSE 0 END), 0)
		 FROM sentence_progress WHERE document_id = ?`,
		s.docID,
	).Scan(&sum.Done, &sum.Failed, &sum.Seconds)
	if err != nil {
		return sum, fmt.Errorf("[progress] 统计失败: %w", err)
	}
	return sum, nil
}

// Reset 清空文档的全部进度。
func (s *ProgressStore) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM sentence_progress WHERE document_id = ?`, s.docID); err != nil {
		return fmt.Errorf("[progress] 清空进度失败: %w", err)
	}
	return nil
}
