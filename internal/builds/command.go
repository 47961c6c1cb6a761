package builds

import (
	"path"
	"strings"

	"github.com/shaiso/Forge/internal/domain"
)

// buildCommand возвращает команду запуска сборки внутри образа рантайма.
func buildCommand(version, commands string) string {
	if version == domain.VersionV2 {
		return "tar -zxf /tmp/code.tar.gz -C /usr/code && cd /usr/local/src/ && ./build.sh"
	}
	escaped := strings.ReplaceAll(commands, `"`, `\"`)
	return `tar -zxf /tmp/code.tar.gz -C /mnt/code && helpers/build.sh "` + escaped + `"`
}

// buildVariables собирает переменные окружения сборки.
// Порядок: общие переменные тенанта, переменные функции, платформенные.
func buildVariables(fn *domain.Function, dep *domain.Deployment, rt domain.Runtime) map[string]string {
	vars := make(map[string]string, len(fn.SharedVars)+len(fn.Vars)+6)
	for k, v := range fn.SharedVars {
		vars[k] = v
	}
	for k, v := range fn.Vars {
		vars[k] = v
	}
	vars["FORGE_FUNCTION_ID"] = fn.ID
	vars["FORGE_FUNCTION_NAME"] = fn.Name
	vars["FORGE_FUNCTION_DEPLOYMENT"] = dep.ID
	vars["FORGE_FUNCTION_PROJECT_ID"] = fn.TenantID
	vars["FORGE_FUNCTION_RUNTIME_NAME"] = rt.Name
	vars["FORGE_FUNCTION_RUNTIME_VERSION"] = rt.Version
	return vars
}

// cleanRoot нормализует корневой каталог функции в репозитории:
// "./src/fn/" становится "src/fn", пустая строка означает корень.
func cleanRoot(dir string) string {
	dir = strings.TrimRight(dir, "/")
	dir = strings.TrimLeft(dir, ".")
	dir = strings.TrimLeft(dir, "/")
	if dir == "" {
		return ""
	}
	cleaned := path.Clean(dir)
	if cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return ""
	}
	return cleaned
}
