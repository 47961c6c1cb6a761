package domain

import (
	"slices"
	"time"
)

// Версии рантаймов. Всё, что не v2, считается v1.
const (
	VersionV1 = "v1"
	VersionV2 = "v2"
)

// Роли для проверки прав на выполнение.
const (
	RoleAny    = "any"
	RoleGuests = "guests"
	RoleUsers  = "users"
)

// ConsoleTenant — служебный тенант консоли; его задания не исполняются.
const ConsoleTenant = "console"

// Function — пользовательская функция тенанта.
type Function struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	// Runtime — ключ рантайма в каталоге, например "node-18.0".
	Runtime string `json:"runtime"`

	// Version — версия рантаймов ("v2" по умолчанию).
	Version string `json:"version"`

	// DeploymentID — активный деплоймент.
	DeploymentID string `json:"deployment_id,omitempty"`

	// Execute — список ролей, которым разрешено выполнение.
	Execute []string `json:"execute"`

	// Vars — переменные функции. SharedVars — общие переменные тенанта.
	Vars       map[string]string `json:"vars,omitempty"`
	SharedVars map[string]string `json:"shared_vars,omitempty"`

	Enabled bool `json:"enabled"`
	Logging bool `json:"logging"`

	// Events — паттерны событий, на которые подписана функция.
	Events []string `json:"events,omitempty"`

	// Schedule — cron-выражение, пустое если расписания нет.
	Schedule   string `json:"schedule,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`

	// Timeout — таймаут выполнения в секундах.
	Timeout int `json:"timeout"`

	// VCSRootDirectory — каталог функции внутри репозитория.
	VCSRootDirectory string `json:"vcs_root_directory,omitempty"`

	// SilentMode отключает commit status и комментарии в PR.
	SilentMode bool `json:"silent_mode"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuntimeVersion возвращает версию рантаймов с учётом значения по умолчанию.
func (f *Function) RuntimeVersion() string {
	if f.Version == "" {
		return VersionV2
	}
	return f.Version
}

// HasSchedule возвращает true, если у функции задано расписание.
func (f *Function) HasSchedule() bool {
	return f.Schedule != ""
}

// IsPublic возвращает true, если выполнение доступно без идентификации.
func (f *Function) IsPublic() bool {
	return slices.Contains(f.Execute, RoleAny) || slices.Contains(f.Execute, RoleGuests)
}

// AllowsRoles проверяет, есть ли среди ролей вызывающего хотя бы одна разрешённая.
func (f *Function) AllowsRoles(roles []string) bool {
	if f.IsPublic() {
		return true
	}
	for _, r := range roles {
		if slices.Contains(f.Execute, r) {
			return true
		}
	}
	return false
}

// SubscribedTo возвращает true, если хотя бы одно событие совпадает с подпиской.
func (f *Function) SubscribedTo(events []string) bool {
	for _, e := range events {
		if slices.Contains(f.Events, e) {
			return true
		}
	}
	return false
}

// UserRoles возвращает роли вызывающего по его ID.
func UserRoles(userID string) []string {
	if userID == "" {
		return []string{RoleAny, RoleGuests}
	}
	return []string{RoleAny, RoleUsers, "user:" + userID}
}
