package executions

import (
	"maps"

	"github.com/shaiso/Forge/internal/domain"
)

// mergeVariables объединяет наборы переменных; более поздний набор
// перекрывает более ранний.
func mergeVariables(sets ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, set := range sets {
		maps.Copy(out, set)
	}
	return out
}

// platformVariables — переменные, которые платформа передаёт каждому вызову.
func platformVariables(fn *domain.Function, deploymentID string, rt domain.Runtime, inv *Invocation, jwt string) map[string]string {
	return map[string]string{
		"FORGE_FUNCTION_ID":              fn.ID,
		"FORGE_FUNCTION_NAME":            fn.Name,
		"FORGE_FUNCTION_DEPLOYMENT":      deploymentID,
		"FORGE_FUNCTION_PROJECT_ID":      fn.TenantID,
		"FORGE_FUNCTION_RUNTIME_NAME":    rt.Name,
		"FORGE_FUNCTION_RUNTIME_VERSION": rt.Version,
		"FORGE_FUNCTION_TRIGGER":         string(inv.Trigger),
		"FORGE_FUNCTION_EVENT":           inv.Event,
		"FORGE_FUNCTION_EVENT_DATA":      inv.EventData,
		"FORGE_FUNCTION_DATA":            inv.Data,
		"FORGE_FUNCTION_USER_ID":         inv.UserID,
		"FORGE_FUNCTION_JWT":             jwt,
	}
}

// runtimeEntrypoint — команда старта для рантаймов v1; v2 стартуют сами.
func runtimeEntrypoint(version string, rt domain.Runtime) string {
	if version == domain.VersionV2 {
		return ""
	}
	return `cp /tmp/code.tar.gz /mnt/code/code.tar.gz && nohup helpers/start.sh "` + rt.StartCommand + `"`
}
