package executions

import "errors"

// ErrDuplicate — выполнение с этим ID уже завершено (повторная доставка задания).
var ErrDuplicate = errors.New("execution already finished")
