package domain

// BuildStatus — статус сборки.
//
// Жизненный цикл:
//
//	waiting → processing → building → ready
//	                               ↘ failed
//	(из любого нефинального) → cancelled
//
// cancelled поглощающий: после него статус больше не меняется.
type BuildStatus string

const (
	// BuildStatusWaiting — сборка создана, ожидает воркера.
	BuildStatusWaiting BuildStatus = "waiting"

	// BuildStatusProcessing — подготовка исходников (clone, архив, загрузка).
	BuildStatusProcessing BuildStatus = "processing"

	// BuildStatusBuilding — удалённый builder собирает артефакт.
	BuildStatusBuilding BuildStatus = "building"

	// BuildStatusReady — артефакт готов к запуску.
	BuildStatusReady BuildStatus = "ready"

	// BuildStatusFailed — сборка завершилась с ошибкой.
	BuildStatusFailed BuildStatus = "failed"

	// BuildStatusCancelled — сборка отменена пользователем.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsTerminal возвращает true, если статус финальный.
func (s BuildStatus) IsTerminal() bool {
	switch s {
	case BuildStatusReady, BuildStatusFailed, BuildStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода.
func (s BuildStatus) CanTransitionTo(next BuildStatus) bool {
	// финальная сборка не меняется: retry создаёт новую
	if s.IsTerminal() {
		return false
	}
	if next == BuildStatusCancelled {
		return true
	}
	switch s {
	case BuildStatusWaiting:
		return next == BuildStatusProcessing
	case BuildStatusProcessing:
		return next == BuildStatusBuilding || next == BuildStatusFailed || next == BuildStatusProcessing
	case BuildStatusBuilding:
		return next == BuildStatusReady || next == BuildStatusFailed
	default:
		return false
	}
}

// ExecutionStatus — статус выполнения функции.
//
// Жизненный цикл:
//
//	waiting → processing → completed
//	                     ↘ failed
type ExecutionStatus string

const (
	ExecutionStatusWaiting    ExecutionStatus = "waiting"
	ExecutionStatusProcessing ExecutionStatus = "processing"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Trigger — источник запуска выполнения.
type Trigger string

const (
	TriggerHTTP     Trigger = "http"
	TriggerSchedule Trigger = "schedule"
	TriggerEvent    Trigger = "event"
)

// ParseTrigger парсит строку в Trigger.
func ParseTrigger(s string) (Trigger, bool) {
	switch Trigger(s) {
	case TriggerHTTP, TriggerSchedule, TriggerEvent:
		return Trigger(s), true
	default:
		return "", false
	}
}
