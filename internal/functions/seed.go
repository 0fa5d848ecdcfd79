package functions

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/blasbase/blasbase/internal/shared"
)

// SeedFile is the document layout of a role tree seed.
type SeedFile struct {
	Functions []SeedNode `yaml:"functions"`
}

// SeedResult summarises a seeding run.
type SeedResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Granted  int `json:"granted"`
}

// LoadSeed decodes a YAML seed document.
func LoadSeed(r io.Reader) ([]SeedNode, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc SeedFile
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := checkSeed(doc.Functions, "functions"); err != nil {
		return nil, err
	}
	return doc.Functions, nil
}

func checkSeed(nodes []SeedNode, where string) error {
	names := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return shared.NewValidationError(fmt.Sprintf("%s[%d].name", where, i), "is required")
		}
		if _, dup := names[name]; dup {
			return shared.NewValidationError(fmt.Sprintf("%s[%d].name", where, i), fmt.Sprintf("duplicate sibling %q", name))
		}
		names[name] = struct{}{}
		if err := checkSeed(n.Children, fmt.Sprintf("%s[%d].children", where, i)); err != nil {
			return err
		}
	}
	return nil
}

// Seed creates the missing parts of the given forest. Existing nodes are matched
// by name under the same parent and left unchanged, apart from listed permissions
// which replace the node's direct grants.
func (s *Service) Seed(ctx context.Context, actorID int64, nodes []SeedNode) (SeedResult, error) {
	var res SeedResult
	tree, err := s.Tree(ctx)
	if err != nil {
		return res, err
	}
	if err := s.seedLevel(ctx, actorID, tree, nil, nodes, &res); err != nil {
		return res, err
	}
	s.logger.Info("functions seeded",
		"created", res.Created,
		"existing", res.Existing,
		"granted", res.Granted,
	)
	return res, nil
}

func (s *Service) seedLevel(ctx context.Context, actorID int64, tree *Tree, parent *int64, nodes []SeedNode, res *SeedResult) error {
	for _, n := range nodes {
		name := strings.TrimSpace(n.Name)
		f, ok := tree.ChildNamed(parent, name)
		if ok {
			res.Existing++
		} else {
			created, err := s.CreateFunction(ctx, actorID, CreateInput{
				ParentID:    parent,
				Name:        name,
				Description: n.Description,
				Membership:  n.Membership,
				Engagement:  n.Engagement,
			})
			if err != nil {
				return fmt.Errorf("seed %q: %w", name, err)
			}
			f = created
			res.Created++
		}
		if len(n.Permissions) > 0 {
			perms, err := s.perms.EnsureKeys(ctx, n.Permissions)
			if err != nil {
				return fmt.Errorf("seed %q permissions: %w", name, err)
			}
			ids := make([]int64, 0, len(perms))
			for _, p := range perms {
				ids = append(ids, p.ID)
			}
			if _, err := s.SetPermissions(ctx, actorID, f.ID, ids); err != nil {
				return fmt.Errorf("seed %q permissions: %w", name, err)
			}
			res.Granted += len(ids)
		}
		id := f.ID
		if err := s.seedLevel(ctx, actorID, tree, &id, n.Children, res); err != nil {
			return err
		}
	}
	return nil
}
