// Package builds превращает деплоймент функции в запускаемый артефакт.
//
// Orchestrator получает задания из очереди builds.pending и для каждого:
//   - перечитывает функцию, деплоймент и сборку (отменённая сборка не трогается)
//   - для новой сборки из репозитория клонирует код, при необходимости
//     переносит шаблон, пакует исходники и загружает их в хранилище
//   - вызывает удалённый builder, параллельно сохраняя поток логов
//   - фиксирует ready/failed, активирует деплоймент, обновляет расписание
//   - публикует снимки в realtime, событие обновления и метрики потребления
//
// Статус cancelled поглощающий: оркестратор никогда его не перезаписывает.
package builds
