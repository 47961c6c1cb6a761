package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/shaiso/Forge/internal/domain"
	"github.com/shaiso/Forge/internal/workspace"
)

// API — операции GitHub, нужные Provider.
type API interface {
	CloneURL(ctx context.Context, installationID, owner, repo string) (string, error)
	PublicCloneURL(owner, repo string) string
	UpdateCommitStatus(ctx context.Context, installationID, owner, repo, sha string, status CommitStatus) error
	GetComment(ctx context.Context, installationID, owner, repo, commentID string) (string, error)
	UpdateComment(ctx context.Context, installationID, owner, repo, commentID, body string) error
	CommitURL(owner, repo, sha string) string
	OwnerURL(owner string) string
}

// Repo — операции git CLI, нужные Provider.
type Repo interface {
	Clone(ctx context.Context, repoURL, branch, commit, dest string) error
	CommitAndPush(ctx context.Context, dir, branch, message string) (string, error)
}

// ProviderConfig — конфигурация Provider.
type ProviderConfig struct {
	API    API
	Git    Repo
	Locker Locker
	Lock   LockOptions

	// ConsoleURL строит ссылку на функцию в консоли для commit status.
	ConsoleURL func(tenantID, functionID string) string

	Logger *slog.Logger
}

// Provider — git-сторона сборки: клонирование, шаблоны, статусы.
type Provider struct {
	api        API
	git        Repo
	locker     Locker
	lock       LockOptions
	consoleURL func(tenantID, functionID string) string
	logger     *slog.Logger
}

// NewProvider создаёт Provider.
func NewProvider(cfg ProviderConfig) *Provider {
	consoleURL := cfg.ConsoleURL
	if consoleURL == nil {
		consoleURL = func(string, string) string { return "" }
	}
	return &Provider{
		api:        cfg.API,
		git:        cfg.Git,
		locker:     cfg.Locker,
		lock:       cfg.Lock,
		consoleURL: consoleURL,
		logger:     cfg.Logger,
	}
}

// Checkout клонирует репозиторий деплоймента в dir.
func (p *Provider) Checkout(ctx context.Context, src domain.VCSSource, dir string) error {
	repoURL, err := p.api.CloneURL(ctx, src.InstallationID, src.Owner, src.Repository)
	if err != nil {
		return fmt.Errorf("clone url: %w", err)
	}
	return p.git.Clone(ctx, repoURL, src.Branch, src.CommitHash, dir)
}

// TemplatePush — параметры переноса шаблона в репозиторий тенанта.
type TemplatePush struct {
	Source        domain.VCSSource
	Template      domain.Template
	FunctionName  string
	RootDirectory string

	// RepoDir — клон репозитория тенанта, ScratchDir — пустой каталог для шаблона.
	RepoDir    string
	ScratchDir string
}

// PushTemplate клонирует шаблон, копирует недостающие файлы в каталог
// функции, коммитит и пушит. Возвращает хеш коммита и его метаданные.
func (p *Provider) PushTemplate(ctx context.Context, push TemplatePush) (string, domain.CommitInfo, error) {
	tmpl := push.Template
	if err := p.git.Clone(ctx, p.api.PublicCloneURL(tmpl.Owner, tmpl.Repository), tmpl.Branch, "", push.ScratchDir); err != nil {
		return "", domain.CommitInfo{}, fmt.Errorf("clone template: %w", err)
	}

	from := filepath.Join(push.ScratchDir, filepath.FromSlash(tmpl.RootDirectory))
	to := filepath.Join(push.RepoDir, filepath.FromSlash(push.RootDirectory))
	if err := workspace.CopyMissing(from, to); err != nil {
		return "", domain.CommitInfo{}, fmt.Errorf("copy template: %w", err)
	}

	message := fmt.Sprintf("Create '%s' function", push.FunctionName)
	hash, err := p.git.CommitAndPush(ctx, push.RepoDir, push.Source.Branch, message)
	if err != nil {
		return "", domain.CommitInfo{}, err
	}

	info := domain.CommitInfo{
		Author:    "Forge",
		AuthorURL: p.api.OwnerURL(push.Source.Owner),
		Message:   message,
		URL:       p.api.CommitURL(push.Source.Owner, push.Source.Repository, hash),
	}
	return hash, info, nil
}

// StatusReport — состояние сборки для commit status и комментария PR.
type StatusReport struct {
	Function   *domain.Function
	Deployment *domain.Deployment
	Status     domain.BuildStatus
}

// ReportStatus обновляет commit status и строку функции в комментарии PR.
// Функции в silent mode пропускаются.
func (p *Provider) ReportStatus(ctx context.Context, r StatusReport) error {
	fn, dep := r.Function, r.Deployment
	if fn.SilentMode || !dep.VCS.IsSet() {
		return nil
	}
	src := dep.VCS
	var errs []error

	if src.CommitHash != "" {
		state, message := commitState(r.Status)
		err := p.api.UpdateCommitStatus(ctx, src.InstallationID, src.Owner, src.Repository, src.CommitHash, CommitStatus{
			State:       state,
			Description: message,
			TargetURL:   p.consoleURL(fn.TenantID, fn.ID),
			Context:     fmt.Sprintf("%s (%s)", fn.Name, fn.TenantID),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("commit status: %w", err))
		}
	}

	if src.CommentID != "" {
		err := WithLock(ctx, p.locker, src.CommentID, p.lock, p.logger, func(ctx context.Context) error {
			body, err := p.api.GetComment(ctx, src.InstallationID, src.Owner, src.Repository, src.CommentID)
			if err != nil {
				return err
			}
			c := ParseComment(body)
			c.AddBuild(CommentBuild{
				TenantID:     fn.TenantID,
				FunctionID:   fn.ID,
				FunctionName: fn.Name,
				DeploymentID: dep.ID,
				Status:       string(r.Status),
				LogsURL:      p.consoleURL(fn.TenantID, fn.ID),
			})
			return p.api.UpdateComment(ctx, src.InstallationID, src.Owner, src.Repository, src.CommentID, c.Render())
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("pr comment: %w", err))
		}
	}

	return errors.Join(errs...)
}

// commitState сопоставляет статус сборки состоянию и тексту commit status.
func commitState(status domain.BuildStatus) (state, message string) {
	switch status {
	case domain.BuildStatusReady:
		return "success", "Build succeeded."
	case domain.BuildStatusFailed:
		return "failure", "Build failed."
	case domain.BuildStatusProcessing:
		return "pending", "Building..."
	default:
		return string(status), string(status)
	}
}
