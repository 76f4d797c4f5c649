// Package catalog loads the exercise catalog the scheduling core is keyed
// by. Cards come from .md files in local directories and, optionally, from
// git repositories that are cloned or pulled before loading. The catalog is
// the source of truth for which card ids exist.
package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/conorfennell/drillcard/internal/cardid"
	"github.com/conorfennell/drillcard/internal/domain"
	"github.com/conorfennell/drillcard/internal/gitsource"
	"github.com/conorfennell/drillcard/internal/parser"
)

// Load walks each directory for .md card files and returns all cards found,
// in walk order. Cards without an explicit id get a content-derived one.
// When two cards share an id the first wins and the duplicate is skipped
// with a warning, so a copy-pasted exercise cannot shadow progress.
func Load(dirs []string) ([]domain.Card, error) {
	var cards []domain.Card
	seen := make(map[string]string) // id -> file it came from

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				return nil
			}

			fileCards, err := parser.ParseFile(path)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			for _, card := range fileCards {
				if card.ID == "" {
					card.ID = cardid.Derive(card)
				}
				if origin, dup := seen[card.ID]; dup {
					slog.Warn("duplicate card id, keeping first",
						"id", card.ID, "file", path, "first_seen", origin)
					continue
				}
				seen[card.ID] = path
				cards = append(cards, card)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	}
	return cards, nil
}

// LoadWithRepos syncs each git repository into reposDir, then loads cards
// from the local directories and the synced clones together.
func LoadWithRepos(dirs, repoURLs []string, reposDir string) ([]domain.Card, error) {
	all := append([]string(nil), dirs...)
	for _, repoURL := range repoURLs {
		localPath, err := repoLocalPath(reposDir, repoURL)
		if err != nil {
			return nil, err
		}
		if err := gitsource.Sync(repoURL, localPath); err != nil {
			return nil, err
		}
		all = append(all, localPath)
	}
	return Load(all)
}

// repoLocalPath maps a git URL to a stable clone path under baseDir.
// Handles https URLs and scp-style ssh addresses (git@host:owner/repo.git).
func repoLocalPath(baseDir, repoURL string) (string, error) {
	parsed, err := url.Parse(repoURL)
	if err == nil && (parsed.Scheme == "https" || parsed.Scheme == "http") {
		p := strings.TrimSuffix(parsed.Path, ".git")
		return filepath.Join(baseDir, parsed.Host, p), nil
	}

	if at := strings.Index(repoURL, "@"); at != -1 {
		if host, repoPath, ok := strings.Cut(repoURL[at+1:], ":"); ok {
			repoPath = strings.TrimSuffix(repoPath, ".git")
			return filepath.Join(baseDir, host, repoPath), nil
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}
