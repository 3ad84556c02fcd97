package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inamate/nestbox/internal/auth"
	"github.com/inamate/nestbox/internal/document"
	"github.com/inamate/nestbox/internal/snapshot"
	"github.com/inamate/nestbox/internal/typeid"
)

var ErrNotFound = errors.New("session not found")

type Service struct {
	repo snapshot.Repository
	auth *auth.Service
}

func NewService(repo snapshot.Repository, authService *auth.Service) *Service {
	return &Service{repo: repo, auth: authService}
}

// Created is returned to the client that opened a session.
type Created struct {
	ID      string `json:"id"`
	Token   string `json:"token"`
	Version int    `json:"version"`
}

// Create starts a session seeded with an empty or sample document saved as
// its first snapshot.
func (s *Service) Create(ctx context.Context, sample bool) (*Created, error) {
	sessionID := typeid.NewSessionID()

	doc := document.NewEmptyDocument()
	if sample {
		doc = document.NewSampleDocument()
	}
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal initial document: %w", err)
	}

	snap, err := s.repo.Create(ctx, sessionID, docJSON)
	if err != nil {
		return nil, fmt.Errorf("create initial snapshot: %w", err)
	}

	token, err := s.auth.IssueToken(sessionID)
	if err != nil {
		return nil, err
	}

	slog.Info("session created", "session", sessionID, "sample", sample)
	return &Created{ID: sessionID, Token: token, Version: snap.Version}, nil
}

// LoadDocument returns the latest saved document of a session.
func (s *Service) LoadDocument(ctx context.Context, sessionID string) ([]byte, error) {
	snap, err := s.repo.Latest(ctx, sessionID)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return snap.Document, nil
}

// SaveDocument stores a new snapshot and returns its version.
func (s *Service) SaveDocument(ctx context.Context, sessionID string, doc []byte) (int, error) {
	snap, err := s.repo.Create(ctx, sessionID, doc)
	if err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	return snap.Version, nil
}
