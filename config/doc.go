// Package config 提供 Charis 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → CHARIS_* 环境变量 的顺序合并，
// 文件位于 $CHARIS_CONFIG_DIR 或 ~/.charis 下。支持按 yaml 键名
// 修改单个字段并写回文件。
package config
