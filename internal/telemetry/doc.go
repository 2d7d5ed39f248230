// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 charis 提供 TracerProvider、MeterProvider 以及基于 OTel 指标的
// 提供者尝试记录器。遥测禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
