package contributions

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedFixture []byte

type seedEntry struct {
	Ref         string   `yaml:"ref"`
	Parent      string   `yaml:"parent"`
	Contributor string   `yaml:"contributor"`
	ProjectID   string   `yaml:"projectId"`
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Resonance   int      `yaml:"resonance"`
}

func loadSeedEntries(data []byte) ([]seedEntry, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var entries []seedEntry
	if err := decoder.Decode(&entries); err != nil {
		return nil, err
	}
	for index, entry := range entries {
		if entry.Ref == "" {
			return nil, fmt.Errorf("seed entry %d: ref is required", index)
		}
		if _, err := ParseContributionType(entry.Type); err != nil {
			return nil, fmt.Errorf("seed entry %q: %w", entry.Ref, err)
		}
	}
	return entries, nil
}

// Seed populates the sample contributions when the collection is empty and reports how many
// were added. A non-empty collection is left untouched.
func (s *Store) Seed(ctx context.Context) (int, error) {
	if existing := s.LoadAll(ctx); len(existing) > 0 {
		s.recorder.ObserveOperation(opSeed, OutcomeSkipped)
		return 0, nil
	}

	entries, err := loadSeedEntries(seedFixture)
	if err != nil {
		s.logError(opSeed, reasonSeedDecodeFailed, err)
		return 0, newServiceError(opSeed, reasonSeedDecodeFailed, err)
	}

	created := make(map[string]string, len(entries))
	for _, entry := range entries {
		contributionType, _ := ParseContributionType(entry.Type)
		fields := Contribution{
			Contributor: entry.Contributor,
			ProjectID:   entry.ProjectID,
			Type:        contributionType,
			Description: entry.Description,
			Tags:        entry.Tags,
			Resonance:   entry.Resonance,
		}
		if entry.Parent != "" {
			parentID, ok := created[entry.Parent]
			if !ok {
				err := fmt.Errorf("seed entry %q references unknown parent %q", entry.Ref, entry.Parent)
				s.logError(opSeed, reasonSeedDecodeFailed, err)
				return 0, newServiceError(opSeed, reasonSeedDecodeFailed, err)
			}
			fields.ParentContributionID = parentID
		}
		contribution, err := s.Construct(fields)
		if err != nil {
			return 0, err
		}
		s.Add(ctx, contribution)
		created[entry.Ref] = contribution.ID
	}

	s.recorder.ObserveOperation(opSeed, OutcomeOK)
	s.logger.Info("sample contributions seeded", zap.Int("count", len(entries)))
	return len(entries), nil
}
