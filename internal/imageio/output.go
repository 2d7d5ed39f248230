package imageio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultDirName 未配置输出目录时使用的子目录名
const DefaultDirName = "generated-images"

// DefaultOutputDir 返回配置的输出目录，未配置时为 cwd/generated-images
func DefaultOutputDir(cwd, configured string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(cwd, DefaultDirName)
}

// MakeFilename 生成 img-<seq>-YYYYMMDD-HHMMSS.<ext>
func MakeFilename(seq int, ext string, t time.Time) string {
	return fmt.Sprintf("img-%d-%s.%s", seq, t.Format("20060102-150405"), ext)
}

// WriteAtomic 先写入同目录临时文件再重命名
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// SaveAll 按顺序写出 bufs，序号从 1 开始，返回写出的路径
func SaveAll(dir, ext string, bufs [][]byte, now time.Time) ([]string, error) {
	paths := make([]string, 0, len(bufs))
	for i, buf := range bufs {
		path := filepath.Join(dir, MakeFilename(i+1, ext, now))
		if err := WriteAtomic(path, buf); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
