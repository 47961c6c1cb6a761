package executions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Forge/internal/domain"
)

// fanOutPageSize — размер страницы при переборе функций тенанта.
const fanOutPageSize = 30

// Event — событие для рассылки по подписанным функциям.
type Event struct {
	TenantID string
	Events   []string
	Payload  any
	UserID   string
}

// FanOut вызывает каждую функцию тенанта, подписанную хотя бы на одно
// из событий. Возвращает число вызванных функций.
//
// Сбой отдельного вызова логируется и не прерывает рассылку. Ошибка
// чтения страницы после первого вызова тоже только логируется.
func (d *Dispatcher) FanOut(ctx context.Context, ev Event) (int, error) {
	if len(ev.Events) == 0 {
		return 0, nil
	}
	eventData, err := encodeEventData(ev.Payload)
	if err != nil {
		return 0, fmt.Errorf("%w: event payload: %v", domain.ErrValidation, err)
	}

	logger := d.logger.With("tenant_id", ev.TenantID, "event", ev.Events[0])

	invoked := 0
	for offset := 0; ; offset += fanOutPageSize {
		page, err := d.functions.ListPage(ctx, ev.TenantID, fanOutPageSize, offset)
		if err != nil {
			if invoked > 0 {
				// повторная доставка вызвала бы уже вызванных подписчиков снова
				logger.Error("fan-out stopped early", "invoked", invoked, "offset", offset, "error", err)
				return invoked, nil
			}
			return invoked, fmt.Errorf("list functions: %w", err)
		}
		logger.Debug("fetched functions", "count", len(page), "offset", offset)

		for i := range page {
			fn := &page[i]
			if !fn.SubscribedTo(ev.Events) {
				continue
			}
			invoked++
			_, err := d.Invoke(ctx, Invocation{
				TenantID:   fn.TenantID,
				FunctionID: fn.ID,
				Function:   fn,
				Trigger:    domain.TriggerEvent,
				UserID:     ev.UserID,
				Event:      ev.Events[0],
				EventData:  eventData,
			})
			if err != nil {
				logger.Warn("event invocation failed", "function_id", fn.ID, "error", err)
			}
		}

		if len(page) < fanOutPageSize {
			break
		}
	}

	logger.Info("event fan-out finished", "invoked", invoked)
	return invoked, nil
}

// encodeEventData возвращает строку как есть, остальное кодирует в JSON.
func encodeEventData(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
