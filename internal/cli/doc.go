// Package cli реализует операторский инструмент командной строки Forge.
//
// CLI работает через HTTP API и не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Forge API одного тенанта. Передаёт операторский токен
// в Authorization, разбирает DataResponse и ErrorResponse.
//
//	client := cli.NewClient("http://localhost:8080", "tenant-1", token)
//	build, err := client.GetBuild("b1")
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) в stderr:
// forge build show b1 --json | jq .status
//
// ## Commands
//
//   - build: start, show, cancel
//   - execution: create, show, invoke
package cli
