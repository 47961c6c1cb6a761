// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (хранилища, dispatcher, publisher, logger)
//   - routes.go           — chi router и регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, operator auth)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - invoke_handler.go   — синхронный HTTP вызов функции
//   - build_handler.go    — постановка, отмена и просмотр сборок
//   - execution_handler.go — асинхронные выполнения
//
// Синхронный вызов открыт для пользователей функции (права проверяет
// dispatcher), остальные endpoints требуют операторский токен.
package api
