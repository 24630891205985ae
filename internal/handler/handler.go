package handler

import (
	"fileserver/internal/config"
	"fileserver/internal/signing"
	"fileserver/internal/store"
	"fileserver/internal/token"
)

// Handler handles HTTP requests
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	signer    *signing.Signer
	authority *token.Authority
	sessions  *sessionStore
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, st *store.Store, signer *signing.Signer, authority *token.Authority) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     st,
		signer:    signer,
		authority: authority,
		sessions:  newSessionStore(),
	}
}
