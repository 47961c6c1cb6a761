package domain

import "time"

// VCSSource — происхождение деплоймента из репозитория.
type VCSSource struct {
	InstallationID string `json:"installation_id,omitempty"`
	RepositoryID   string `json:"repository_id,omitempty"`
	Owner          string `json:"owner,omitempty"`
	Repository     string `json:"repository,omitempty"`
	Branch         string `json:"branch,omitempty"`
	CommitHash     string `json:"commit_hash,omitempty"`
	CommentID      string `json:"comment_id,omitempty"`
}

// IsSet возвращает true, если деплоймент пришёл из репозитория.
func (v VCSSource) IsSet() bool {
	return v.InstallationID != "" && v.Owner != "" && v.Repository != ""
}

// CommitInfo — метаданные коммита, заполняемые во время сборки.
type CommitInfo struct {
	Author    string `json:"author,omitempty"`
	AuthorURL string `json:"author_url,omitempty"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Deployment — конкретная ревизия исходников функции.
type Deployment struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	FunctionID string `json:"function_id"`
	BuildID    string `json:"build_id"`

	Entrypoint string `json:"entrypoint"`
	Commands   string `json:"commands,omitempty"`

	// Path — загруженный архив исходников (деплоймент без VCS).
	Path string `json:"path,omitempty"`

	// Activate — сделать деплоймент активным после успешной сборки.
	Activate bool `json:"activate"`

	VCS    VCSSource  `json:"vcs"`
	Commit CommitInfo `json:"commit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Template — шаблон стартового кода, который копируется в репозиторий
// тенанта при первой сборке.
type Template struct {
	Owner         string `json:"owner"`
	Repository    string `json:"repository"`
	Branch        string `json:"branch"`
	RootDirectory string `json:"root_directory"`
}

// IsSet возвращает true, если шаблон задан.
func (t *Template) IsSet() bool {
	return t != nil && t.Owner != "" && t.Repository != ""
}
