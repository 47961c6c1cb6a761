package vcs

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GitHubConfig — настройки GitHub App.
type GitHubConfig struct {
	AppID      string
	PrivateKey string // PEM
	APIURL     string // по умолчанию https://api.github.com
	CloneBase  string // по умолчанию https://github.com
	HTTPClient *http.Client
}

// GitHub — клиент REST API от имени GitHub App.
type GitHub struct {
	appID     string
	key       *rsa.PrivateKey
	apiURL    string
	cloneBase string
	http      *http.Client

	mu     sync.Mutex
	tokens map[string]installationToken
}

type installationToken struct {
	token     string
	expiresAt time.Time
}

// CommitStatus — статус коммита.
type CommitStatus struct {
	State       string `json:"state"`
	Description string `json:"description"`
	TargetURL   string `json:"target_url,omitempty"`
	Context     string `json:"context"`
}

// NewGitHub разбирает ключ приложения.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse github app key: %w", err)
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	cloneBase := cfg.CloneBase
	if cloneBase == "" {
		cloneBase = "https://github.com"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHub{
		appID:     cfg.AppID,
		key:       key,
		apiURL:    strings.TrimRight(apiURL, "/"),
		cloneBase: strings.TrimRight(cloneBase, "/"),
		http:      hc,
		tokens:    make(map[string]installationToken),
	}, nil
}

// appJWT подписывает JWT приложения (RS256, 9 минут).
func (g *GitHub) appJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    g.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.key)
}

// token возвращает токен установки, кешируя его до истечения.
func (g *GitHub) token(ctx context.Context, installationID string) (string, error) {
	g.mu.Lock()
	cached, ok := g.tokens[installationID]
	g.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > time.Minute {
		return cached.token, nil
	}

	appToken, err := g.appJWT(time.Now())
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}

	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	path := "/app/installations/" + url.PathEscape(installationID) + "/access_tokens"
	if err := g.do(ctx, http.MethodPost, path, "Bearer "+appToken, nil, &out); err != nil {
		return "", fmt.Errorf("installation token: %w", err)
	}

	g.mu.Lock()
	g.tokens[installationID] = installationToken{token: out.Token, expiresAt: out.ExpiresAt}
	g.mu.Unlock()
	return out.Token, nil
}

// CloneURL возвращает URL клонирования с токеном установки.
func (g *GitHub) CloneURL(ctx context.Context, installationID, owner, repo string) (string, error) {
	token, err := g.token(ctx, installationID)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(g.cloneBase)
	if err != nil {
		return "", fmt.Errorf("parse clone base: %w", err)
	}
	u.User = url.UserPassword("x-access-token", token)
	u.Path = fmt.Sprintf("/%s/%s.git", owner, repo)
	return u.String(), nil
}

// UpdateCommitStatus выставляет статус коммита.
func (g *GitHub) UpdateCommitStatus(ctx context.Context, installationID, owner, repo, sha string, status CommitStatus) error {
	path := fmt.Sprintf("/repos/%s/%s/statuses/%s", owner, repo, sha)
	return g.withToken(ctx, installationID, http.MethodPost, path, status, nil)
}

// GetComment возвращает текст комментария.
func (g *GitHub) GetComment(ctx context.Context, installationID, owner, repo, commentID string) (string, error) {
	var out struct {
		Body string `json:"body"`
	}
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%s", owner, repo, commentID)
	if err := g.withToken(ctx, installationID, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Body, nil
}

// UpdateComment перезаписывает текст комментария.
func (g *GitHub) UpdateComment(ctx context.Context, installationID, owner, repo, commentID, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/comments/%s", owner, repo, commentID)
	return g.withToken(ctx, installationID, http.MethodPatch, path, map[string]string{"body": body}, nil)
}

// PublicCloneURL возвращает URL клонирования публичного репозитория.
func (g *GitHub) PublicCloneURL(owner, repo string) string {
	return fmt.Sprintf("%s/%s/%s.git", g.cloneBase, owner, repo)
}

// CommitURL возвращает веб-ссылку на коммит.
func (g *GitHub) CommitURL(owner, repo, sha string) string {
	return fmt.Sprintf("%s/%s/%s/commit/%s", g.cloneBase, owner, repo, sha)
}

// OwnerURL возвращает веб-ссылку на владельца репозитория.
func (g *GitHub) OwnerURL(owner string) string {
	return g.cloneBase + "/" + owner
}

func (g *GitHub) withToken(ctx context.Context, installationID, method, path string, in, out any) error {
	token, err := g.token(ctx, installationID)
	if err != nil {
		return err
	}
	return g.do(ctx, method, path, "token "+token, in, out)
}

func (g *GitHub) do(ctx context.Context, method, path, auth string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.apiURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", auth)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: %d %s", ErrGitHub, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
