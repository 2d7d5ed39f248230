/*
Package types 提供 charis 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、config、cmd 等上层
模块提供统一的错误契约，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含操作名、Provider、HTTP 状态码与 Retryable 标记

# 主要能力

  - 错误构建：NewError / Errorf + WithCause / WithProvider / WithOperation 链式调用
  - 错误判定：IsRetryable / GetErrorCode / IsCode，支持 errors.As 解包
*/
package types
