package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Forge/internal/domain"
)

// DeploymentRepo — репозиторий деплойментов.
type DeploymentRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepo создаёт новый DeploymentRepo.
func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

// GetByID возвращает деплоймент по ID.
func (r *DeploymentRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Deployment, error) {
	query := `
		SELECT tenant_id, id, function_id, build_id, entrypoint, commands, path, activate,
		       vcs_installation_id, vcs_repository_id, vcs_owner, vcs_repository,
		       vcs_branch, vcs_commit_hash, vcs_comment_id,
		       commit_author, commit_author_url, commit_message, commit_url,
		       created_at, updated_at
		FROM deployments
		WHERE tenant_id = $1 AND id = $2
	`
	var (
		d                                                 domain.Deployment
		commands, path                                    *string
		installation, repoID, owner, repoName, branch     *string
		hash, comment, author, authorURL, message, urlStr *string
	)
	err := r.pool.QueryRow(ctx, query, tenantID, id).Scan(
		&d.TenantID, &d.ID, &d.FunctionID, &d.BuildID, &d.Entrypoint, &commands, &path, &d.Activate,
		&installation, &repoID, &owner, &repoName,
		&branch, &hash, &comment,
		&author, &authorURL, &message, &urlStr,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get deployment: %w", err)
	}

	d.Commands = deref(commands)
	d.Path = deref(path)
	d.VCS = domain.VCSSource{
		InstallationID: deref(installation),
		RepositoryID:   deref(repoID),
		Owner:          deref(owner),
		Repository:     deref(repoName),
		Branch:         deref(branch),
		CommitHash:     deref(hash),
		CommentID:      deref(comment),
	}
	d.Commit = domain.CommitInfo{
		Author:    deref(author),
		AuthorURL: deref(authorURL),
		Message:   deref(message),
		URL:       deref(urlStr),
	}
	return &d, nil
}

// UpdateCommit сохраняет хеш коммита и его метаданные.
func (r *DeploymentRepo) UpdateCommit(ctx context.Context, d *domain.Deployment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deployments
		SET vcs_commit_hash = $3, commit_author = $4, commit_author_url = $5,
		    commit_message = $6, commit_url = $7, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		d.TenantID, d.ID,
		nullString(d.VCS.CommitHash),
		nullString(d.Commit.Author),
		nullString(d.Commit.AuthorURL),
		nullString(d.Commit.Message),
		nullString(d.Commit.URL),
	)
	if err != nil {
		return fmt.Errorf("update deployment commit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBuild переключает деплоймент на другую сборку.
func (r *DeploymentRepo) SetBuild(ctx context.Context, tenantID, id, buildID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE deployments SET build_id = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, buildID,
	)
	if err != nil {
		return fmt.Errorf("set deployment build: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
