package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset 从 YAML 读取的提示词预设，键值结构不做约束
type Preset map[string]any

// Load 读取 path 处的 YAML 预设文件
func Load(path string) (Preset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve preset path: %w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read preset %s: %w", abs, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，顶层必须是映射
func Parse(data []byte) (Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	if p == nil {
		p = Preset{}
	}
	return p, nil
}

// Prompt 返回 prompt 字段
func (p Preset) Prompt() string {
	return p.String("prompt")
}

// Style 返回 style 字段
func (p Preset) Style() string {
	return p.String("style")
}

// String 以字符串形式读取顶层字段，字符串列表以 ", " 连接
func (p Preset) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}
