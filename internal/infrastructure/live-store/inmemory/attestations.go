package inmemorylivestore

import (
	"context"
	"sync"

	"github.com/anchoros/anchord/internal/core/ports"
)

type liveStore struct {
	sources            ports.SourceStore
	attestationWindows ports.AttestationWindowStore
}

func NewLiveStore(windowSize int) ports.LiveStore {
	return &liveStore{
		sources:            NewSourceStore(),
		attestationWindows: NewAttestationWindowStore(windowSize),
	}
}

func (s *liveStore) Sources() ports.SourceStore {
	return s.sources
}

func (s *liveStore) AttestationWindows() ports.AttestationWindowStore {
	return s.attestationWindows
}

type sourceStore struct {
	lock    sync.RWMutex
	sources map[string]struct{}
}

func NewSourceStore() ports.SourceStore {
	return &sourceStore{sources: make(map[string]struct{})}
}

func (s *sourceStore) Register(_ context.Context, sourceID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sources[sourceID] = struct{}{}
	return nil
}

func (s *sourceStore) Exists(_ context.Context, sourceID string) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, ok := s.sources[sourceID]
	return ok, nil
}

func (s *sourceStore) GetAll(_ context.Context) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	sources := make([]string, 0, len(s.sources))
	for sourceID := range s.sources {
		sources = append(sources, sourceID)
	}
	return sources, nil
}

type attestationWindowStore struct {
	lock       sync.RWMutex
	windowSize int
	windows    map[string]map[string][]ports.AttestationPoint // pair -> source -> window
}

func NewAttestationWindowStore(windowSize int) ports.AttestationWindowStore {
	return &attestationWindowStore{
		windowSize: windowSize,
		windows:    make(map[string]map[string][]ports.AttestationPoint),
	}
}

func (s *attestationWindowStore) Push(
	_ context.Context, assetPair string, point ports.AttestationPoint,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.windows[assetPair]; !ok {
		s.windows[assetPair] = make(map[string][]ports.AttestationPoint)
	}
	window := append(s.windows[assetPair][point.SourceID], point)
	if len(window) > s.windowSize {
		window = window[len(window)-s.windowSize:]
	}
	s.windows[assetPair][point.SourceID] = window
	return nil
}

func (s *attestationWindowStore) LatestBySource(
	_ context.Context, assetPair string,
) (map[string]ports.AttestationPoint, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	latest := make(map[string]ports.AttestationPoint)
	for sourceID, window := range s.windows[assetPair] {
		if len(window) == 0 {
			continue
		}
		latest[sourceID] = window[len(window)-1]
	}
	return latest, nil
}

func (s *attestationWindowStore) Window(
	_ context.Context, assetPair, sourceID string,
) ([]ports.AttestationPoint, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	window := s.windows[assetPair][sourceID]
	out := make([]ports.AttestationPoint, len(window))
	copy(out, window)
	return out, nil
}
