// Package executions запускает функции на удалённом executor'е.
//
// Dispatcher выполняет один вызов функции: проверяет, что активный деплоймент
// собран, создаёт Execution, собирает переменные окружения, вызывает executor
// с локальным таймаутом и фиксирует результат. Снимок уходит в realtime,
// событие обновления в очередь событий, метрики в usage.
//
// Worker читает очереди functions.pending и events.pending: задания http и
// schedule исполняются напрямую, события рассылаются по подписанным функциям.
package executions
