// Package telemetry обеспечивает наблюдаемость сервисов Forge.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus метрики сборок, выполнений и HTTP
//
// Каждый бинарник экспортирует метрики на /metrics и отвечает на /healthz.
package telemetry
