package builds

import "errors"

// errCancelled — сборка отменена во время обработки. Наружу не выходит.
var errCancelled = errors.New("build cancelled")
