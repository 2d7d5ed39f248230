// Package tlsutil 构建 charis 所有出站请求共用的 HTTP 客户端，
// 包括 Gemini 调用与输入图片下载（TLS 1.2+，仅 AEAD 密码套件，遵循代理环境变量）。
package tlsutil
