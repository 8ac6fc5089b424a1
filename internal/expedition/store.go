package expedition

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/stickycheZ101/HardLight/pkg/core"
)

// Store maps stations to their expedition data.
type Store struct {
	mu       sync.RWMutex
	stations map[core.StationID]*Data
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		stations: make(map[core.StationID]*Data),
	}
}

// Add creates the record for station, or returns the existing one.
func (s *Store) Add(station core.StationID, now time.Time) *Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.stations[station]; ok {
		return d
	}
	d := NewData(station, now)
	s.stations[station] = d
	return d
}

// Get returns the record for station.
func (s *Store) Get(station core.StationID) (*Data, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.stations[station]
	return d, ok
}

// Remove deletes the record for station and reports whether it existed.
func (s *Store) Remove(station core.StationID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.stations[station]
	delete(s.stations, station)
	return ok
}

// Len returns the number of stations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

// Stations returns all records ordered by station ID.
func (s *Store) Stations() []*Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Data, 0, len(s.stations))
	for _, d := range s.stations {
		list = append(list, d)
	}
	slices.SortFunc(list, func(a, b *Data) int {
		return cmp.Compare(a.Station, b.Station)
	})
	return list
}
