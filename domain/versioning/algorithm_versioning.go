package versioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedrank/domain/core/entities"
)

// SemVer is a parsed MAJOR.MINOR.PATCH version
type SemVer struct {
	Major int
	Minor int
	Patch int
}

// ParseSemVer parses "1.2.3" (an optional leading "v" is accepted)
func ParseSemVer(s string) (SemVer, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(s), "v"), ".")
	if len(parts) != 3 {
		return SemVer{}, fmt.Errorf("invalid semantic version %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return SemVer{}, fmt.Errorf("invalid semantic version %q", s)
		}
		nums[i] = n
	}
	return SemVer{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1
func (v SemVer) Compare(o SemVer) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// NextVersion returns the version an update should move to. An empty requested
// version bumps the patch; a requested version must be strictly greater than current.
func NextVersion(current, requested string) (string, error) {
	cur, err := ParseSemVer(current)
	if err != nil {
		cur = SemVer{Major: 1}
	}
	if strings.TrimSpace(requested) == "" {
		cur.Patch++
		return cur.String(), nil
	}
	req, err := ParseSemVer(requested)
	if err != nil {
		return "", err
	}
	if req.Compare(cur) <= 0 {
		return "", fmt.Errorf("version %s must be greater than current version %s", req, cur)
	}
	return req.String(), nil
}

// VersioningService produces revision snapshots for algorithm updates
type VersioningService struct {
	maxRevisions int
	now          func() time.Time
}

// NewVersioningService creates a new versioning service. maxRevisions <= 0 keeps all.
func NewVersioningService(maxRevisions int) *VersioningService {
	return &VersioningService{
		maxRevisions: maxRevisions,
		now:          time.Now,
	}
}

// MaxRevisions returns the retention limit
func (s *VersioningService) MaxRevisions() int {
	return s.maxRevisions
}

// CreateRevision snapshots the algorithm's current (pre-update) state
func (s *VersioningService) CreateRevision(algorithm *entities.Algorithm, editorID, notes string) (*entities.Revision, error) {
	if algorithm == nil {
		return nil, fmt.Errorf("algorithm cannot be nil")
	}

	snapshot := algorithm.Snapshot()
	checksum, err := Checksum(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return &entities.Revision{
		ID:          uuid.New().String(),
		AlgorithmID: snapshot.ID,
		Version:     snapshot.Version,
		Definition:  snapshot,
		Checksum:    checksum,
		EditorID:    editorID,
		ChangeNotes: notes,
		CreatedAt:   s.now(),
	}, nil
}

// Checksum hashes the scoring-relevant parts of a definition
func Checksum(snapshot entities.AlgorithmSnapshot) (string, error) {
	// Counters and timestamps change without a new revision, so they are excluded.
	data := struct {
		Name               string                 `json:"name"`
		Slug               string                 `json:"slug"`
		Description        string                 `json:"description"`
		IsPublic           bool                   `json:"is_public"`
		WeightConfig       map[string]float64     `json:"weight_config"`
		SignalDescriptions map[string]string      `json:"signal_descriptions"`
		AlgorithmConfig    map[string]interface{} `json:"algorithm_config"`
	}{
		Name:               snapshot.Name,
		Slug:               snapshot.Slug,
		Description:        snapshot.Description,
		IsPublic:           snapshot.IsPublic,
		WeightConfig:       snapshot.WeightConfig,
		SignalDescriptions: snapshot.SignalDescriptions,
		AlgorithmConfig:    snapshot.AlgorithmConfig,
	}

	// encoding/json sorts map keys, so the encoding is deterministic
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// WeightChange describes how one signal's weight moved between two definitions
type WeightChange struct {
	Signal string  `json:"signal"`
	From   float64 `json:"from"`
	To     float64 `json:"to"`
}

// RevisionDiff is what changed between two snapshots of an algorithm
type RevisionDiff struct {
	FromVersion      string         `json:"fromVersion"`
	ToVersion        string         `json:"toVersion"`
	WeightChanges    []WeightChange `json:"weightChanges,omitempty"`
	ConfigChanged    bool           `json:"configChanged"`
	VisibilityChange bool           `json:"visibilityChanged"`
}

// CompareRevisions reports how to differs from from. Weight changes are listed by signal name.
func CompareRevisions(from, to entities.AlgorithmSnapshot) *RevisionDiff {
	diff := &RevisionDiff{
		FromVersion:      from.Version,
		ToVersion:        to.Version,
		VisibilityChange: from.IsPublic != to.IsPublic,
	}

	for _, name := range from.WeightConfig.Names() {
		if w, ok := to.WeightConfig[name]; !ok || w != from.WeightConfig[name] {
			diff.WeightChanges = append(diff.WeightChanges, WeightChange{Signal: name, From: from.WeightConfig[name], To: w})
		}
	}
	for _, name := range to.WeightConfig.Names() {
		if _, ok := from.WeightConfig[name]; !ok {
			diff.WeightChanges = append(diff.WeightChanges, WeightChange{Signal: name, To: to.WeightConfig[name]})
		}
	}
	sort.Slice(diff.WeightChanges, func(i, j int) bool {
		return diff.WeightChanges[i].Signal < diff.WeightChanges[j].Signal
	})

	fromCfg, _ := json.Marshal(from.AlgorithmConfig)
	toCfg, _ := json.Marshal(to.AlgorithmConfig)
	diff.ConfigChanged = string(fromCfg) != string(toCfg)

	return diff
}
