package domain

import "errors"

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates rate limit exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrAssistantRequestFailed covers every transport or status failure of the assistant endpoint
	ErrAssistantRequestFailed = errors.New("assistant request failed")
	// ErrSessionNotFound indicates the chat session is not mounted
	ErrSessionNotFound = errors.New("session not found")
	// ErrRequestPending indicates a submit was rejected because a request is in flight
	ErrRequestPending = errors.New("request pending")
)
