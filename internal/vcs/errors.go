package vcs

import "errors"

var (
	// ErrLockBusy — блокировку комментария не удалось получить за отведённые попытки.
	ErrLockBusy = errors.New("comment lock busy")

	// ErrGitHub — GitHub API вернул ошибку.
	ErrGitHub = errors.New("github api error")
)
