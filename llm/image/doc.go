/*
包 image 提供图像生成的多 Provider 编排能力：统一的 Provider 接口、
两个 Gemini 实现、按优先级回退的执行器以及响应载荷提取。

# 概述

同一个逻辑服务有两种客户端实现：NativeProvider 基于官方 genai SDK，
RESTProvider 直接调用 generateContent HTTP 接口。二者实现相同的
Provider 接口，由 NewGeminiChain 按 [native, rest] 顺序组成 Chain。

# 核心接口

  - Provider：Generate / Edit / Caption / Complete 为必备能力，
    Supports 报告可选能力（upscale、remove-background）。
  - Upscaler / BackgroundRemover：可选能力接口，通过 AsUpscaler /
    AsBackgroundRemover 获取。
  - TryProviders：依次调用 Chain 中的 Provider，使用调用方提供的
    校验谓词判断结果是否可用，失败或结果为空时回退到下一个 Provider，
    全部失败时返回最后一个错误。
  - ExtractImages / ExtractText：容错地从任意形状的响应中提取
    内联图像与文本，从不因缺失字段而失败。

# 重试与回退

两层相互独立：Provider 内部使用 llm/retry 对单次网络调用做指数退避
重试（瞬时错误），TryProviders 在 Provider 之间回退，每个 Provider
只尝试一次。

# 校验谓词

AtLeast(n) 与 Exactly(n) 用于图像数量不足的判定，NonEmptyBuffer 与
NonEmptyText 用于单图与文本结果。
*/
package image
