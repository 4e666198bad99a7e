package service

import (
	"e2ee-channels/internal/store"
)

const defaultKeyType = "RSA-4096"

type Service struct {
	store *store.Store
}

func New(store *store.Store) *Service {
	return &Service{store: store}
}
