package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/langchou/chargepilot/internal/models"
)

const fileIndent = "    "

// 历史文件中的时间可能不带时区（按本地时间解析）
var naiveTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// FileRecorder 把会话记录追加到 JSON 数组文件中。
// 已写入的元素按原字节保留，只追加新元素
type FileRecorder struct {
	path string
	mu   sync.Mutex
}

// NewFileRecorder 创建文件记录器，文件不存在时在首次写入时创建
func NewFileRecorder(path string) *FileRecorder {
	return &FileRecorder{path: path}
}

// Append 追加一条记录，写入临时文件后原子替换
func (f *FileRecorder) Append(ctx context.Context, rec *models.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	elems, err := f.loadRaw()
	if err != nil {
		return err
	}

	rec.ID = int64(len(elems) + 1)
	encoded, err := json.MarshalIndent(rec, fileIndent, fileIndent)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("[\n")
	for _, e := range elems {
		buf.WriteString(fileIndent)
		buf.Write(e)
		buf.WriteString(",\n")
	}
	buf.WriteString(fileIndent)
	buf.Write(encoded)
	buf.WriteString("\n]\n")

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create record dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace record file: %w", err)
	}
	return nil
}

// List 按开始时间倒序分页，未知字段被忽略
func (f *FileRecorder) List(ctx context.Context, limit, offset int) ([]*models.SessionRecord, error) {
	f.mu.Lock()
	elems, err := f.loadRaw()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	records := make([]*models.SessionRecord, 0, len(elems))
	for i, e := range elems {
		rec, err := decodeRecord(e)
		if err != nil {
			return nil, fmt.Errorf("decode record %d in %s: %w", i, f.path, err)
		}
		if rec.ID == 0 {
			rec.ID = int64(i + 1)
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
	if offset >= len(records) {
		return []*models.SessionRecord{}, nil
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// loadRaw 读取数组元素的原始字节
func (f *FileRecorder) loadRaw() ([]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("decode records %s: %w", f.path, err)
	}
	return elems, nil
}

// storedRecord 读取时替换时间字段的解析方式
type storedRecord struct {
	*models.SessionRecord
	StartTime fileTime `json:"start_time"`
	EndTime   fileTime `json:"end_time"`
}

func decodeRecord(raw json.RawMessage) (*models.SessionRecord, error) {
	s := storedRecord{SessionRecord: &models.SessionRecord{}}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	s.SessionRecord.StartTime = time.Time(s.StartTime)
	s.SessionRecord.EndTime = time.Time(s.EndTime)
	return s.SessionRecord, nil
}

// fileTime 兼容 RFC 3339 和不带时区的 ISO 8601
type fileTime time.Time

func (t *fileTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = fileTime(v)
		return nil
	}
	for _, layout := range naiveTimeLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*t = fileTime(v)
			return nil
		}
	}
	return fmt.Errorf("unsupported time %q", s)
}
