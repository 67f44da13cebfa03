// Package profile loads the customer profile and projects it onto a
// product category.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/IshaanNene/ShopSense/internal/types"
)

// Categories the profile carries preferences for.
var Categories = []string{"Electronics", "Clothes", "Food"}

var validate = validator.New()

// Load reads the profile at path. A missing file yields the default
// profile and a warning; a malformed one is an error.
func Load(path string, logger *slog.Logger) (*types.CustomerProfile, error) {
	p := &types.CustomerProfile{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("customer profile not found, using defaults", "path", path)
		return applyDefaults(p), nil
	case err != nil:
		return nil, fmt.Errorf("read customer profile: %w", err)
	}

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse customer profile %s: %w", path, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid customer profile %s: %w", path, err)
	}
	logger.Info("customer profile loaded", "path", path, "user_id", p.UserID)
	return applyDefaults(p), nil
}

func applyDefaults(p *types.CustomerProfile) *types.CustomerProfile {
	if p.UserID == "" {
		p.UserID = "unknown_user"
	}
	if p.Name == "" {
		p.Name = "Unknown"
	}
	if p.Location == "" {
		p.Location = "Unknown"
	}
	if p.ReviewTone == nil {
		p.ReviewTone = 0
	}
	if p.DecisionStyle == nil {
		p.DecisionStyle = 0
	}
	return p
}

// Project returns the customer data for category. Preferences are empty
// unless category is one of Categories.
func Project(p *types.CustomerProfile, category string) types.CustomerData {
	if p == nil {
		p = applyDefaults(&types.CustomerProfile{})
	}
	data := types.CustomerData{
		UserID:        p.UserID,
		Name:          p.Name,
		Location:      p.Location,
		ReviewTone:    p.ReviewTone,
		DecisionStyle: p.DecisionStyle,
		Preferences:   map[string]any{},
	}
	for _, c := range Categories {
		if c == category {
			if prefs, ok := p.Categories[c]; ok && prefs != nil {
				data.Preferences = prefs
			}
			break
		}
	}
	return data
}
