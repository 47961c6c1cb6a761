package builds

import (
	"log/slog"
	"time"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/mq"
)

// buildState — состояние обработки одной сборки.
type buildState struct {
	job        mq.BuildJob
	function   *domain.Function
	deployment *domain.Deployment
	build      *domain.Build
	runtime    domain.Runtime

	// events — варианты события обновления деплоймента, первый самый подробный.
	events []string

	// started — начало обработки; от него считается длительность.
	started time.Time

	// replaces — деплоймент пока указывает на предыдущую готовую сборку
	// и переключается на эту только когда она станет ready.
	replaces bool

	logger *slog.Logger
}

// tenantID возвращает тенант задания.
func (s *buildState) tenantID() string {
	return s.job.TenantID
}

// elapsed возвращает время с начала обработки.
func (s *buildState) elapsed(now time.Time) time.Duration {
	return now.Sub(s.started)
}
