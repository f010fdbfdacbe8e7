package services

import (
	"errors"

	"github.com/jwebster45206/infinite-story/pkg/storage"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrNoActiveStory        = errors.New("no active story")
	ErrInvalidMood          = errors.New("invalid mood")
	ErrInvalidGenre         = errors.New("invalid genre")
	ErrNoStoryToMerge       = errors.New("no story to merge")
	ErrMergeRequestNotFound = errors.New("merge request not found")
	ErrMergeRequestResolved = storage.ErrMergeRequestResolved
	ErrSegmentNotFound      = errors.New("source segment not found")
	ErrSessionBusy          = errors.New("session is busy")
)
