// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schema

import (
	"errors"
	"fmt"

	"github.com/luxfi/anchoring"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/ledger"
)

var ErrConfigNotFound = errors.New("anchoring configuration not found")

// ActualConfig returns the anchoring configuration in force.
func (s *Schema) ActualConfig() (*config.AnchoringConfig, error) {
	cfg, err := s.ledger.ActualConfiguration()
	if err != nil {
		return nil, err
	}
	return decode(cfg)
}

// FollowingConfig returns the scheduled anchoring configuration, or nil.
func (s *Schema) FollowingConfig() (*config.AnchoringConfig, error) {
	cfg, err := s.ledger.FollowingConfiguration()
	if err != nil || cfg == nil {
		return nil, err
	}
	return decode(cfg)
}

// PreviousConfig returns the anchoring configuration that preceded the
// actual one, or nil.
func (s *Schema) PreviousConfig() (*config.AnchoringConfig, error) {
	cfg, err := s.ledger.PreviousConfiguration()
	if err != nil || cfg == nil {
		return nil, err
	}
	return decode(cfg)
}

// ConfigByHeight returns the anchoring configuration that was actual at
// height.
func (s *Schema) ConfigByHeight(height uint64) (*config.AnchoringConfig, error) {
	cfg, err := s.ledger.ConfigurationByHeight(height)
	if err != nil {
		return nil, err
	}
	return decode(cfg)
}

// decode fails if the anchoring payload is absent or malformed. Neither is
// recoverable: no transaction can be built without a valid configuration.
func decode(cfg *ledger.Configuration) (*config.AnchoringConfig, error) {
	payload, ok := cfg.Service(anchoring.ServiceName)
	if !ok {
		return nil, fmt.Errorf("%w: actual from %d", ErrConfigNotFound, cfg.ActualFrom)
	}
	return config.Parse(payload)
}
