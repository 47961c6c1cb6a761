package vcs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

const commentStateMarker = "<!-- forge-state:"

// CommentBuild — строка таблицы сборок в комментарии PR.
type CommentBuild struct {
	TenantID     string `json:"tenant_id"`
	FunctionID   string `json:"function_id"`
	FunctionName string `json:"function_name"`
	DeploymentID string `json:"deployment_id"`
	Status       string `json:"status"`
	LogsURL      string `json:"logs_url,omitempty"`
}

// Comment — комментарий PR со статусами сборок всех функций,
// привязанных к репозиторию. Состояние хранится в самом комментарии
// в скрытом HTML блоке.
type Comment struct {
	builds map[string]CommentBuild
}

// ParseComment восстанавливает состояние из текста комментария.
// Текст без состояния даёт пустой комментарий.
func ParseComment(body string) *Comment {
	c := &Comment{builds: make(map[string]CommentBuild)}

	i := strings.Index(body, commentStateMarker)
	if i < 0 {
		return c
	}
	rest := body[i+len(commentStateMarker):]
	j := strings.Index(rest, "-->")
	if j < 0 {
		return c
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest[:j]))
	if err != nil {
		return c
	}
	var builds map[string]CommentBuild
	if err := json.Unmarshal(raw, &builds); err != nil {
		return c
	}
	if builds != nil {
		c.builds = builds
	}
	return c
}

// AddBuild добавляет или заменяет строку функции.
func (c *Comment) AddBuild(b CommentBuild) {
	c.builds[b.TenantID+"_"+b.FunctionID] = b
}

// Builds возвращает строки в стабильном порядке.
func (c *Comment) Builds() []CommentBuild {
	keys := make([]string, 0, len(c.builds))
	for k := range c.builds {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]CommentBuild, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.builds[k])
	}
	return out
}

// Render генерирует markdown комментария вместе со скрытым состоянием.
func (c *Comment) Render() string {
	var b strings.Builder
	b.WriteString("**Forge deployments**\n\n")
	b.WriteString("| Function | ID | Status | Action |\n")
	b.WriteString("| :- | :- | :- | :- |\n")
	for _, build := range c.Builds() {
		action := ""
		if build.LogsURL != "" {
			action = fmt.Sprintf("[View Logs](%s)", build.LogsURL)
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n",
			build.FunctionName, build.FunctionID, statusLabel(build.Status), action)
	}

	state, _ := json.Marshal(c.builds)
	fmt.Fprintf(&b, "\n%s%s -->\n", commentStateMarker, base64.StdEncoding.EncodeToString(state))
	return b.String()
}

func statusLabel(status string) string {
	switch status {
	case "ready":
		return "Ready"
	case "failed":
		return "Failed"
	case "processing", "building":
		return "Building"
	case "waiting":
		return "Queued"
	case "cancelled":
		return "Cancelled"
	default:
		return status
	}
}
