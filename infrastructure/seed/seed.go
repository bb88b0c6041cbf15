// Package seed loads the embedded official algorithm catalog and the fallback
// posts served when the live feed is unavailable.
package seed

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"feedrank/application/services"
	"feedrank/domain/core/entities"
	"feedrank/domain/core/valueobjects"
)

//go:embed official_algorithms.yaml
var officialAlgorithmsYAML []byte

//go:embed fallback_posts.yaml
var fallbackPostsYAML []byte

type catalogFile struct {
	Algorithms []algorithmEntry `yaml:"algorithms"`
}

type algorithmEntry struct {
	ID                 string                 `yaml:"id"`
	Name               string                 `yaml:"name"`
	Slug               string                 `yaml:"slug"`
	Category           string                 `yaml:"category"`
	Description        string                 `yaml:"description"`
	Weights            map[string]float64     `yaml:"weights"`
	SignalDescriptions map[string]string      `yaml:"signal_descriptions"`
	Config             map[string]interface{} `yaml:"config"`
}

type fallbackFile struct {
	Authors []authorEntry `yaml:"authors"`
	Posts   []postEntry   `yaml:"posts"`
}

type authorEntry struct {
	ID             string `yaml:"id"`
	DisplayName    string `yaml:"display_name"`
	Username       string `yaml:"username"`
	Verified       bool   `yaml:"verified"`
	AccountAgeDays int    `yaml:"account_age_days"`
}

type postEntry struct {
	ID         string `yaml:"id"`
	Author     string `yaml:"author"`
	AgeMinutes int    `yaml:"age_minutes"`
	Likes      int    `yaml:"likes"`
	Comments   int    `yaml:"comments"`
	Body       string `yaml:"body"`
}

// OfficialAlgorithms parses the embedded catalog
func OfficialAlgorithms() ([]services.OfficialAlgorithm, error) {
	return parseCatalog(officialAlgorithmsYAML)
}

func parseCatalog(data []byte) ([]services.OfficialAlgorithm, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse official algorithms: %w", err)
	}

	out := make([]services.OfficialAlgorithm, 0, len(file.Algorithms))
	for _, a := range file.Algorithms {
		if a.ID == "" || a.Slug == "" {
			return nil, fmt.Errorf("official algorithm %q is missing id or slug", a.Name)
		}
		out = append(out, services.OfficialAlgorithm{
			ID: a.ID,
			Definition: entities.AlgorithmDefinition{
				Name:               a.Name,
				Slug:               a.Slug,
				Description:        a.Description,
				CategorySlug:       a.Category,
				IsPublic:           true,
				WeightConfig:       valueobjects.WeightConfig(a.Weights),
				SignalDescriptions: a.SignalDescriptions,
				AlgorithmConfig:    valueobjects.AlgorithmConfig(a.Config),
			},
		})
	}
	return out, nil
}

// FallbackFeed serves the embedded fallback posts
type FallbackFeed struct {
	authors map[string]authorEntry
	posts   []postEntry
}

// NewFallbackFeed parses the embedded fallback dataset
func NewFallbackFeed() (*FallbackFeed, error) {
	return parseFallback(fallbackPostsYAML)
}

// MustFallbackFeed is NewFallbackFeed for wiring code; the embedded file is fixed at build time
func MustFallbackFeed() *FallbackFeed {
	feed, err := NewFallbackFeed()
	if err != nil {
		panic(err)
	}
	return feed
}

func parseFallback(data []byte) (*FallbackFeed, error) {
	var file fallbackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fallback posts: %w", err)
	}
	if len(file.Posts) == 0 {
		return nil, fmt.Errorf("fallback dataset has no posts")
	}

	authors := make(map[string]authorEntry, len(file.Authors))
	for _, a := range file.Authors {
		authors[a.ID] = a
	}
	for _, p := range file.Posts {
		if _, ok := authors[p.Author]; !ok {
			return nil, fmt.Errorf("fallback post %s references unknown author %s", p.ID, p.Author)
		}
	}
	return &FallbackFeed{authors: authors, posts: file.Posts}, nil
}

// Posts returns the fallback items timestamped relative to now
func (f *FallbackFeed) Posts(now time.Time) []valueobjects.ContentItem {
	items := make([]valueobjects.ContentItem, len(f.posts))
	for i, p := range f.posts {
		a := f.authors[p.Author]
		items[i] = valueobjects.ContentItem{
			ID:        p.ID,
			Body:      strings.TrimSpace(p.Body),
			CreatedAt: now.Add(-time.Duration(p.AgeMinutes) * time.Minute),
			AuthorID:  a.ID,
			Author: valueobjects.AuthorProfile{
				ID:               a.ID,
				DisplayName:      a.DisplayName,
				Username:         a.Username,
				Verified:         a.Verified,
				AccountCreatedAt: now.AddDate(0, 0, -a.AccountAgeDays),
			},
			LikeCount:    p.Likes,
			CommentCount: p.Comments,
		}
	}
	return items
}
