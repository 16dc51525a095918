// Package sitestate caches the latest classified reading per site for the
// dashboard's sites view.
package sitestate

import (
	"sync"
	"time"

	"aquaguard/internal/model"
)

type Store struct {
	mu        sync.RWMutex
	bySite    map[string]model.Reading
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		bySite:    make(map[string]model.Reading),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *Store) Update(r model.Reading) {
	if r.SiteID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySite[r.SiteID] = r
	s.updatedAt[r.SiteID] = time.Now().UTC()
	if len(s.bySite) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(siteID string) (model.Reading, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.bySite[siteID]
	if !ok {
		return model.Reading{}, time.Time{}, false
	}
	return r, s.updatedAt[siteID], true
}

func (s *Store) GetAll() map[string]model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Reading, len(s.bySite))
	for siteID, r := range s.bySite {
		out[siteID] = r
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestSite string
	var oldest time.Time
	for site, ts := range s.updatedAt {
		if oldestSite == "" || ts.Before(oldest) {
			oldestSite = site
			oldest = ts
		}
	}
	if oldestSite != "" {
		delete(s.bySite, oldestSite)
		delete(s.updatedAt, oldestSite)
	}
}
