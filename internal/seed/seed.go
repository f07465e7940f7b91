// Package seed loads users and issues from YAML into a store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

//go:embed demo.yaml
var demoYAML []byte

// File is the on-disk seed format.
type File struct {
	Users  []models.User   `yaml:"users"`
	Issues []*models.Issue `yaml:"issues"`
}

// Result counts what Apply wrote.
type Result struct {
	Users  int
	Issues int
}

// Demo returns the built-in demo data.
func Demo() (*File, error) {
	return Parse(demoYAML)
}

// LoadFile reads a seed file from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes seed YAML. Unknown enum values fail here.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// Apply upserts the users and imports the issues through the tracker so every
// issue is checked against the lifecycle invariants. The whole file is
// validated before anything is written, so a bad record leaves the store
// untouched.
func Apply(ctx context.Context, s store.Store, tr *issues.Tracker, f *File) (Result, error) {
	var res Result
	if err := validate(f); err != nil {
		return res, err
	}
	for i := range f.Users {
		u := f.Users[i]
		if err := s.UpsertUser(ctx, &u); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		res.Users++
	}
	for _, issue := range f.Issues {
		if err := tr.Import(ctx, issue.Clone()); err != nil {
			return res, err
		}
		res.Issues++
	}
	return res, nil
}

func validate(f *File) error {
	for i, u := range f.Users {
		if u.ID == "" || u.Email == "" {
			return fmt.Errorf("seed user %d: id and email are required", i)
		}
	}
	ids := make(map[int]bool, len(f.Issues))
	for i, issue := range f.Issues {
		if err := issues.ValidateIssue(issue); err != nil {
			return fmt.Errorf("seed issue %d: %w", i, err)
		}
		if issue.ID == 0 {
			continue
		}
		if ids[issue.ID] {
			return fmt.Errorf("seed issue %d: duplicate id %d", i, issue.ID)
		}
		ids[issue.ID] = true
	}
	return nil
}

// IfEmpty applies f only when the store holds no issues and no users.
// It reports whether anything was written.
func IfEmpty(ctx context.Context, s store.Store, tr *issues.Tracker, f *File) (bool, error) {
	existing, err := s.ListIssues(ctx, store.IssueListFilter{})
	if err != nil {
		return false, err
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 || len(users) > 0 {
		return false, nil
	}
	if _, err := Apply(ctx, s, tr, f); err != nil {
		return false, err
	}
	return true, nil
}
