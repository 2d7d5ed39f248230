/*
Package main 提供 charis 命令行程序入口。

# 概述

cmd/charis 基于 cobra 组织子命令。每个图像命令都会按配置构建
[gemini-native, gemini-rest] Provider 链，通过回退执行器依次尝试，
将结果原子写入输出目录并记录到本地历史。

# 子命令

  - generate / edit / merge：生成、编辑、合并图像
  - caption / improve：图像描述与提示词改写
  - upscale / remove-bg：仅在支持该能力的 Provider 上执行
  - history / presets：查看历史与 YAML 预设
  - config init|show|set|set-key|path：配置与凭据管理
  - version：构建信息（Version、BuildTime、GitCommit 通过 ldflags 注入）
*/
package main
