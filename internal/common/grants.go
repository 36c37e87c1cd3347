package common

import (
	"fmt"
	"os"
	"path/filepath"

	"credit-ledger-go/internal/models"

	"gopkg.in/yaml.v2"
)

// GrantPreset is a named, reusable credit grant (e.g. the registration gift).
type GrantPreset struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Amount      int64  `yaml:"amount"`
	ExpireDays  int    `yaml:"expire_days"`
	Description string `yaml:"description"`
}

type GrantsConfig struct {
	Grants []GrantPreset `yaml:"grants"`
}

func LoadGrantPresets(grantsFile string) ([]GrantPreset, error) {
	var grantsPath string
	if filepath.IsAbs(grantsFile) {
		grantsPath = grantsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		grantsPath = filepath.Join(wd, grantsFile)
	}

	data, err := os.ReadFile(grantsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", grantsFile, err)
	}

	var config GrantsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", grantsFile, err)
	}

	seen := make(map[string]struct{}, len(config.Grants))
	for i, grant := range config.Grants {
		if grant.Name == "" {
			return nil, fmt.Errorf("grant at index %d missing name", i)
		}
		if _, dup := seen[grant.Name]; dup {
			return nil, fmt.Errorf("grant %q defined twice", grant.Name)
		}
		seen[grant.Name] = struct{}{}

		t, ok := models.ParseEntryType(grant.Type)
		if !ok || !t.IsEarn() {
			return nil, fmt.Errorf("grant %q has invalid type %q", grant.Name, grant.Type)
		}
		if grant.Amount <= 0 {
			return nil, fmt.Errorf("grant %q must have a positive amount", grant.Name)
		}
		if grant.ExpireDays < 0 {
			return nil, fmt.Errorf("grant %q has negative expire_days", grant.Name)
		}
	}

	return config.Grants, nil
}

// FindGrantPreset looks a preset up by name.
func FindGrantPreset(presets []GrantPreset, name string) (GrantPreset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return GrantPreset{}, false
}

// Params turns the preset into ledger parameters for one user.
func (p GrantPreset) Params(userId, paymentId string) models.AddCreditsParams {
	params := models.AddCreditsParams{
		UserId:      userId,
		Amount:      p.Amount,
		Type:        models.EntryType(p.Type),
		Description: p.Description,
		PaymentId:   paymentId,
	}
	if params.Description == "" {
		params.Description = p.Name
	}
	if p.ExpireDays > 0 {
		days := p.ExpireDays
		params.ExpireDays = &days
	}
	return params
}
