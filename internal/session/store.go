package session

import (
	"sync"
	"time"
)

// Profile is the brand setup a chat accumulates between runs.
type Profile struct {
	UserID       int64
	Username     string
	BrandName    string
	Theme        string
	Tone         string
	AspectRatio  string
	Count        int
	Logo         []byte
	LastActivity time.Time
}

type Options struct {
	// IdleTTL drops profiles untouched for longer than this. Zero keeps them.
	IdleTTL time.Duration
	Now     func() time.Time
}

type Store struct {
	mu       sync.Mutex
	profiles map[int64]*Profile
	idleTTL  time.Duration
	now      func() time.Time
}

func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		profiles: make(map[int64]*Profile),
		idleTTL:  opts.IdleTTL,
		now:      now,
	}
}

// Get returns a copy of the user's profile.
func (s *Store) Get(userID int64, username string) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreateLocked(userID, username)
	p.LastActivity = s.now()
	return clone(p)
}

// Update applies fn to the stored profile and returns the result.
func (s *Store) Update(userID int64, username string, fn func(*Profile)) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.getOrCreateLocked(userID, username)
	fn(p)
	p.LastActivity = s.now()
	return clone(p)
}

func (s *Store) SetLogo(userID int64, username string, logo []byte) {
	data := append([]byte(nil), logo...)
	s.Update(userID, username, func(p *Profile) { p.Logo = data })
}

func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.profiles, userID)
}

// Prune removes idle profiles and reports how many were dropped.
func (s *Store) Prune() int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for id, p := range s.profiles {
		if p.LastActivity.Before(cutoff) {
			delete(s.profiles, id)
			removed++
		}
	}
	return removed
}

func (s *Store) getOrCreateLocked(userID int64, username string) *Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &Profile{UserID: userID}
		s.profiles[userID] = p
	}
	if username != "" {
		p.Username = username
	}
	return p
}

func clone(p *Profile) Profile {
	out := *p
	if p.Logo != nil {
		out.Logo = append([]byte(nil), p.Logo...)
	}
	return out
}
