// Package events раскрывает шаблоны событий платформы.
//
// Шаблон — сегменты через точку, параметры в квадратных скобках:
//
//	functions.[functionId].deployments.[deploymentId].update
//
// Generate подставляет значения параметров и порождает варианты
// с "*" вместо каждого подмножества параметров, с действием и без него,
// а также укороченные до каждого параметра префиксы. Первым всегда идёт
// самый подробный вариант.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Шаблоны событий обновления.
const (
	DeploymentUpdate = "functions.[functionId].deployments.[deploymentId].update"
	ExecutionUpdate  = "functions.[functionId].executions.[executionId].update"
)

// ErrMissingParam — в params нет значения для параметра шаблона.
var ErrMissingParam = errors.New("missing event param")

// Trigger публикует событие "ресурс обновлён" для подписчиков платформы.
type Trigger interface {
	PublishEvent(ctx context.Context, tenantID string, events []string, payload any) error
}

// Generate раскрывает шаблон в список событий.
func Generate(pattern string, params map[string]string) ([]string, error) {
	segments := strings.Split(pattern, ".")

	var paramIdx []int
	for i, seg := range segments {
		name, ok := paramName(seg)
		if !ok {
			continue
		}
		if params[name] == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		paramIdx = append(paramIdx, i)
	}

	// Длины вариантов: полный, без действия, префиксы до каждого параметра.
	lengths := []int{len(segments)}
	if last := segments[len(segments)-1]; len(segments) > 1 && !isParam(last) {
		lengths = append(lengths, len(segments)-1)
	}
	for i := len(paramIdx) - 1; i >= 0; i-- {
		if l := paramIdx[i] + 1; l < lengths[len(lengths)-1] {
			lengths = append(lengths, l)
		}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, l := range lengths {
		var inPrefix []int
		for _, idx := range paramIdx {
			if idx < l {
				inPrefix = append(inPrefix, idx)
			}
		}
		for mask := 0; mask < 1<<len(inPrefix); mask++ {
			event := render(segments[:l], inPrefix, mask, params)
			if _, ok := seen[event]; ok {
				continue
			}
			seen[event] = struct{}{}
			out = append(out, event)
		}
	}
	return out, nil
}

// render собирает событие; бит j маски заменяет j-й с конца параметр на "*".
func render(segments []string, paramIdx []int, mask int, params map[string]string) string {
	parts := make([]string, len(segments))
	copy(parts, segments)
	for j, idx := range paramIdx {
		bit := len(paramIdx) - 1 - j
		if mask&(1<<bit) != 0 {
			parts[idx] = "*"
			continue
		}
		name, _ := paramName(parts[idx])
		parts[idx] = params[name]
	}
	return strings.Join(parts, ".")
}

func isParam(seg string) bool {
	_, ok := paramName(seg)
	return ok
}

func paramName(seg string) (string, bool) {
	if len(seg) > 2 && seg[0] == '[' && seg[len(seg)-1] == ']' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}
