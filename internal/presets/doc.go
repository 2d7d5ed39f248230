// Package presets 读取 YAML 格式的提示词预设。
package presets
