package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"wholesale-market/internal/models"
)

type favoriteListener struct {
	id int
	fn func(bool)
}

// FavoriteService tracks the current user's favorite products and fans out
// successful toggles to in-process subscribers.
type FavoriteService struct {
	backend  FavoriteBackend
	sessions SessionProvider
	images   ObjectStorage

	mu        sync.Mutex
	nextID    int
	listeners map[uuid.UUID][]favoriteListener
}

func NewFavoriteService(backend FavoriteBackend, sessions SessionProvider) *FavoriteService {
	return &FavoriteService{
		backend:   backend,
		sessions:  sessions,
		listeners: make(map[uuid.UUID][]favoriteListener),
	}
}

func (s *FavoriteService) SetImageStorage(images ObjectStorage) { s.images = images }

// IsFavorite is false when nobody is logged in or the lookup fails.
func (s *FavoriteService) IsFavorite(ctx context.Context, productID uuid.UUID) bool {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return false
	}
	ok, err := s.backend.FavoriteExists(ctx, session.UserID, productID)
	if err != nil {
		log.Printf("FavoriteService.IsFavorite - product %s: %v", productID, err)
		return false
	}
	return ok
}

// ToggleFavorite flips the favorite state of a product. Subscribers hear
// about it only when the remote write succeeded.
func (s *FavoriteService) ToggleFavorite(ctx context.Context, productID uuid.UUID) (*models.FavoriteResult, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return nil, err
	}
	exists, err := s.backend.FavoriteExists(ctx, session.UserID, productID)
	if err != nil {
		log.Printf("FavoriteService.ToggleFavorite - check %s: %v", productID, err)
		return nil, fmt.Errorf("check favorite: %w", err)
	}

	result := &models.FavoriteResult{}
	if exists {
		if err := s.backend.RemoveFavorite(ctx, session.UserID, productID); err != nil {
			log.Printf("FavoriteService.ToggleFavorite - remove %s: %v", productID, err)
			return nil, fmt.Errorf("remove favorite: %w", err)
		}
		result.IsFavorite = false
		result.Message = "تمت الإزالة من المفضلة"
	} else {
		entry := &models.FavoriteEntry{UserID: session.UserID, ProductID: productID}
		if err := s.backend.AddFavorite(ctx, entry); err != nil {
			log.Printf("FavoriteService.ToggleFavorite - add %s: %v", productID, err)
			return nil, fmt.Errorf("add favorite: %w", err)
		}
		result.IsFavorite = true
		result.Message = "تمت الإضافة إلى المفضلة"
	}

	s.notify(productID, result.IsFavorite)
	return result, nil
}

// Subscribe registers fn for toggles of productID. The returned function
// removes the registration and may be called more than once.
func (s *FavoriteService) Subscribe(productID uuid.UUID, fn func(isFavorite bool)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[productID] = append(s.listeners[productID], favoriteListener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			list := s.listeners[productID]
			for i, l := range list {
				if l.id == id {
					list = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(list) == 0 {
				delete(s.listeners, productID)
			} else {
				s.listeners[productID] = list
			}
		})
	}
}

func (s *FavoriteService) notify(productID uuid.UUID, isFavorite bool) {
	s.mu.Lock()
	list := make([]favoriteListener, len(s.listeners[productID]))
	copy(list, s.listeners[productID])
	s.mu.Unlock()

	for _, l := range list {
		l.fn(isFavorite)
	}
}

// GetFavorites returns the current user's favorites with live product data.
func (s *FavoriteService) GetFavorites(ctx context.Context) ([]models.FavoriteEntry, error) {
	session, err := s.sessions.RequireActive(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.backend.ListFavorites(ctx, session.UserID)
	if err != nil {
		log.Printf("FavoriteService.GetFavorites - %s: %v", session.UserID, err)
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	for i := range entries {
		entries[i].Product = resolveImage(s.images, entries[i].Product)
	}
	return entries, nil
}
