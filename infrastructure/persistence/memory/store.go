// Package memory implements every storage port in process. It backs local
// development and is the fake used by application tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"feedrank/application/ports"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
	pkgerrors "feedrank/pkg/errors"
)

type prefKey struct {
	userID      string
	algorithmID string
}

// Store holds algorithms, preferences, ratings, revisions and signal logs.
// Install counts are derived from the preference rows under the same lock,
// so they cannot drift from the installs they count.
type Store struct {
	mu          sync.RWMutex
	algorithms  map[string]entities.AlgorithmSnapshot
	slugs       map[string]string
	preferences map[prefKey]entities.Preference
	active      map[string]string
	ratings     map[prefKey]entities.Rating
	revisions   map[string][]entities.Revision
	signalLogs  []*entities.SignalLog
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		algorithms:  make(map[string]entities.AlgorithmSnapshot),
		slugs:       make(map[string]string),
		preferences: make(map[prefKey]entities.Preference),
		active:      make(map[string]string),
		ratings:     make(map[prefKey]entities.Rating),
		revisions:   make(map[string][]entities.Revision),
	}
}

// Algorithms returns the store as an AlgorithmRepository
func (s *Store) Algorithms() ports.AlgorithmRepository { return (*algorithmRepo)(s) }

// Preferences returns the store as a PreferenceRepository
func (s *Store) Preferences() ports.PreferenceRepository { return (*preferenceRepo)(s) }

// Ratings returns the store as a RatingRepository
func (s *Store) Ratings() ports.RatingRepository { return (*ratingRepo)(s) }

// Revisions returns the store as a RevisionRepository
func (s *Store) Revisions() ports.RevisionRepository { return (*revisionRepo)(s) }

// SignalLogs returns the store as a SignalLogRepository
func (s *Store) SignalLogs() ports.SignalLogRepository { return (*signalLogRepo)(s) }

// StoredSignalLogs returns a copy of every persisted signal log
func (s *Store) StoredSignalLogs() []*entities.SignalLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entities.SignalLog, len(s.signalLogs))
	copy(out, s.signalLogs)
	return out
}

// installCountLocked must be called with mu held
func (s *Store) installCountLocked(algorithmID string) int {
	n := 0
	for k := range s.preferences {
		if k.algorithmID == algorithmID {
			n++
		}
	}
	return n
}

func (s *Store) hydrateLocked(snap entities.AlgorithmSnapshot) (*entities.Algorithm, error) {
	snap.InstallCount = s.installCountLocked(snap.ID)
	return entities.ReconstructAlgorithm(snap)
}

type algorithmRepo Store

func (r *algorithmRepo) Save(_ context.Context, algorithm *entities.Algorithm) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := algorithm.Snapshot()
	if owner, ok := s.slugs[snap.Slug]; ok && owner != snap.ID {
		return pkgerrors.NewConflictError("slug is already taken").WithCode(pkgerrors.CodeSlugTaken)
	}
	if prev, ok := s.algorithms[snap.ID]; ok {
		// rating aggregates are owned by UpdateRatingStats
		snap.AverageRating = prev.AverageRating
		snap.RatingCount = prev.RatingCount
		if prev.Slug != snap.Slug {
			delete(s.slugs, prev.Slug)
		}
	}
	s.algorithms[snap.ID] = snap
	s.slugs[snap.Slug] = snap.ID
	return nil
}

func (r *algorithmRepo) GetByID(_ context.Context, id valueobjects.AlgorithmID) (*entities.Algorithm, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.algorithms[id.String()]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("algorithm")
	}
	return s.hydrateLocked(snap)
}

func (r *algorithmRepo) GetBySlug(_ context.Context, slug string) (*entities.Algorithm, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.slugs[slug]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("algorithm")
	}
	return s.hydrateLocked(s.algorithms[id])
}

func (r *algorithmRepo) List(_ context.Context, filter ports.AlgorithmFilter) ([]*entities.Algorithm, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Algorithm, 0, len(s.algorithms))
	for _, snap := range s.algorithms {
		if filter.AuthorID != "" && snap.AuthorID != filter.AuthorID {
			continue
		}
		if filter.OfficialOnly && !snap.IsOfficial {
			continue
		}
		if filter.CategorySlug != "" && snap.CategorySlug != filter.CategorySlug {
			continue
		}
		a, err := s.hydrateLocked(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].InstallCount() != out[j].InstallCount() {
			return out[i].InstallCount() > out[j].InstallCount()
		}
		return out[i].Slug() < out[j].Slug()
	})
	return out, nil
}

func (r *algorithmRepo) UpdateRatingStats(_ context.Context, id valueobjects.AlgorithmID, average float64, count int) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.algorithms[id.String()]
	if !ok {
		return pkgerrors.NewNotFoundError("algorithm")
	}
	snap.AverageRating = average
	snap.RatingCount = count
	s.algorithms[id.String()] = snap
	return nil
}

func (r *algorithmRepo) Delete(_ context.Context, id valueobjects.AlgorithmID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.algorithms[id.String()]
	if !ok {
		return pkgerrors.NewNotFoundError("algorithm")
	}
	delete(s.algorithms, snap.ID)
	delete(s.slugs, snap.Slug)
	return nil
}

type preferenceRepo Store

func (r *preferenceRepo) Install(_ context.Context, pref *entities.Preference) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.algorithms[pref.AlgorithmID]; !ok {
		return false, pkgerrors.NewNotFoundError("algorithm")
	}

	key := prefKey{pref.UserID, pref.AlgorithmID}
	if existing, ok := s.preferences[key]; ok {
		existing.CustomConfig = pref.CustomConfig
		existing.UpdatedAt = pref.UpdatedAt
		s.preferences[key] = existing
		return false, nil
	}
	stored := *pref
	stored.IsActive = false
	s.preferences[key] = stored
	return true, nil
}

func (r *preferenceRepo) Uninstall(_ context.Context, userID string, algorithmID valueobjects.AlgorithmID) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prefKey{userID, algorithmID.String()}
	if _, ok := s.preferences[key]; !ok {
		return false, pkgerrors.NewNotFoundError("preference")
	}
	delete(s.preferences, key)

	wasActive := s.active[userID] == algorithmID.String()
	if wasActive {
		delete(s.active, userID)
	}
	return wasActive, nil
}

func (r *preferenceRepo) Get(_ context.Context, userID string, algorithmID valueobjects.AlgorithmID) (*entities.Preference, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.preferences[prefKey{userID, algorithmID.String()}]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("preference")
	}
	pref.IsActive = s.active[userID] == pref.AlgorithmID
	return &pref, nil
}

func (r *preferenceRepo) ListByUser(_ context.Context, userID string) ([]*entities.Preference, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Preference, 0)
	for k, pref := range s.preferences {
		if k.userID != userID {
			continue
		}
		p := pref
		p.IsActive = s.active[userID] == p.AlgorithmID
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstalledAt.Before(out[j].InstalledAt) })
	return out, nil
}

func (r *preferenceRepo) GetActive(_ context.Context, userID string) (*entities.Preference, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	algID, ok := s.active[userID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("active algorithm")
	}
	pref, ok := s.preferences[prefKey{userID, algID}]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("active algorithm")
	}
	pref.IsActive = true
	return &pref, nil
}

func (r *preferenceRepo) SetActive(_ context.Context, userID string, algorithmID valueobjects.AlgorithmID) (string, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.preferences[prefKey{userID, algorithmID.String()}]; !ok {
		return "", pkgerrors.NewConflictError("algorithm is not installed").WithCode(pkgerrors.CodeAlgorithmNotInstalled)
	}
	previous := s.active[userID]
	s.active[userID] = algorithmID.String()
	return previous, nil
}

func (r *preferenceRepo) CountInstalls(_ context.Context, algorithmID valueobjects.AlgorithmID) (int, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.installCountLocked(algorithmID.String()), nil
}

func (r *preferenceRepo) DeleteByAlgorithm(_ context.Context, algorithmID valueobjects.AlgorithmID) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	id := algorithmID.String()
	removed := 0
	for k := range s.preferences {
		if k.algorithmID == id {
			delete(s.preferences, k)
			removed++
		}
	}
	for user, active := range s.active {
		if active == id {
			delete(s.active, user)
		}
	}
	return removed, nil
}

type ratingRepo Store

func (r *ratingRepo) Upsert(_ context.Context, rating *entities.Rating) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prefKey{rating.UserID, rating.AlgorithmID}
	stored := *rating
	if existing, ok := s.ratings[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.ratings[key] = stored
	return nil
}

func (r *ratingRepo) ListByAlgorithm(_ context.Context, algorithmID valueobjects.AlgorithmID) ([]*entities.Rating, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Rating, 0)
	for k, rating := range s.ratings {
		if k.algorithmID == algorithmID.String() {
			rt := rating
			out = append(out, &rt)
		}
	}
	return out, nil
}

func (r *ratingRepo) DeleteByAlgorithm(_ context.Context, algorithmID valueobjects.AlgorithmID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.ratings {
		if k.algorithmID == algorithmID.String() {
			delete(s.ratings, k)
		}
	}
	return nil
}

type revisionRepo Store

func (r *revisionRepo) Save(_ context.Context, revision *entities.Revision) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisions[revision.AlgorithmID] = append(s.revisions[revision.AlgorithmID], *revision)
	return nil
}

func (r *revisionRepo) ListByAlgorithm(_ context.Context, algorithmID valueobjects.AlgorithmID, limit int) ([]*entities.Revision, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.revisions[algorithmID.String()]
	out := make([]*entities.Revision, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		rev := stored[i]
		out = append(out, &rev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *revisionRepo) Prune(_ context.Context, algorithmID valueobjects.AlgorithmID, keep int) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.revisions[algorithmID.String()]
	if keep <= 0 || len(stored) <= keep {
		return 0, nil
	}
	removed := len(stored) - keep
	s.revisions[algorithmID.String()] = append([]entities.Revision(nil), stored[removed:]...)
	return removed, nil
}

func (r *revisionRepo) DeleteByAlgorithm(_ context.Context, algorithmID valueobjects.AlgorithmID) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.revisions, algorithmID.String())
	return nil
}

type signalLogRepo Store

func (r *signalLogRepo) SaveBatch(_ context.Context, logs []*entities.SignalLog) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalLogs = append(s.signalLogs, logs...)
	return nil
}
