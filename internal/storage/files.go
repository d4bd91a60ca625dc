// Package storage 管理服务请求附件的本地文件存储
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileStore 附件存储，文件名格式 <service_id>_<filename>
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore 创建附件存储（目录不存在则创建）
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Save 保存附件
func (s *FileStore) Save(serviceID, filename string, data []byte) error {
	path, err := s.path(serviceID, filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}
	return nil
}

// Path 返回附件的磁盘路径（下载用），不存在时报错
func (s *FileStore) Path(serviceID, filename string) (string, error) {
	path, err := s.path(serviceID, filename)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("attachment not found: %w", err)
	}
	return path, nil
}

// DeleteAll 删除某个服务请求的全部附件；请求被驱逐时由清扫器调用
func (s *FileStore) DeleteAll(serviceID string) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan upload dir: %w", err)
	}
	prefix := serviceID + "_"
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn("Failed to remove attachment",
				zap.String("service_id", serviceID),
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		s.logger.Info("Attachment removed",
			zap.String("service_id", serviceID),
			zap.String("file", entry.Name()),
		)
	}
	return nil
}

// path 拼接并校验路径；拒绝路径穿越
func (s *FileStore) path(serviceID, filename string) (string, error) {
	name := fmt.Sprintf("%s_%s", serviceID, filepath.Base(filename))
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid attachment name %q", filename)
	}
	return filepath.Join(s.dir, name), nil
}
