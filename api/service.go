// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api serves read-only JSON-RPC access to the anchoring state.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/luxfi/log"

	"github.com/luxfi/anchoring/btc"
	"github.com/luxfi/anchoring/config"
	"github.com/luxfi/anchoring/schema"
	"github.com/luxfi/anchoring/utils/json"
)

const serviceName = "anchoring"

var errUnknownValidator = errors.New("unknown validator")

// State gives access to the latest committed state.
type State interface {
	Schema() *schema.Schema
}

type Service struct {
	log   log.Logger
	state State
}

// NewHandler returns an HTTP handler serving the anchoring API.
func NewHandler(log log.Logger, state State) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	return server, server.RegisterService(&Service{
		log:   log,
		state: state,
	}, serviceName)
}

type AddressReply struct {
	// Address is empty if there is no such configuration.
	Address string `json:"address"`
}

// GetActualAddress returns the anchoring address of the actual configuration.
func (s *Service) GetActualAddress(_ *http.Request, _ *struct{}, reply *AddressReply) error {
	s.log.Debug("API called",
		log.String("service", serviceName),
		log.String("method", "getActualAddress"),
	)

	cfg, err := s.state.Schema().ActualConfig()
	if err != nil {
		return err
	}
	reply.Address, err = cfg.Address()
	return err
}

// GetFollowingAddress returns the anchoring address of the scheduled
// configuration.
func (s *Service) GetFollowingAddress(_ *http.Request, _ *struct{}, reply *AddressReply) error {
	s.log.Debug("API called",
		log.String("service", serviceName),
		log.String("method", "getFollowingAddress"),
	)

	cfg, err := s.state.Schema().FollowingConfig()
	if err != nil || cfg == nil {
		return err
	}
	reply.Address, err = cfg.Address()
	return err
}

type ConfigReply struct {
	Config *config.AnchoringConfig `json:"config"`
}

// GetActualConfig returns the actual anchoring configuration.
func (s *Service) GetActualConfig(_ *http.Request, _ *struct{}, reply *ConfigReply) error {
	s.log.Debug("API called",
		log.String("service", serviceName),
		log.String("method", "getActualConfig"),
	)

	var err error
	reply.Config, err = s.state.Schema().ActualConfig()
	return err
}

type LectReply struct {
	// Tx is null if there is no lect.
	Tx      *btc.Tx     `json:"tx"`
	TxID    string      `json:"txID,omitempty"`
	Height  json.Uint64 `json:"height,omitempty"`
	Payload bool        `json:"payload"`
}

func (r *LectReply) set(tx *btc.Tx) {
	if tx == nil {
		return
	}
	r.Tx = tx
	r.TxID = tx.ID().String()
	if payload, ok := tx.Payload(); ok {
		r.Payload = true
		r.Height = json.Uint64(payload.Height)
	}
}

// GetActualLect returns the lect agreed by the actual validators.
func (s *Service) GetActualLect(_ *http.Request, _ *struct{}, reply *LectReply) error {
	s.log.Debug("API called",
		log.String("service", serviceName),
		log.String("method", "getActualLect"),
	)

	sch := s.state.Schema()
	cfg, err := sch.ActualConfig()
	if err != nil {
		return err
	}
	lect, err := sch.CollectLects(cfg)
	if err != nil {
		return err
	}
	reply.set(lect)
	return nil
}

type ValidatorArgs struct {
	Validator json.Uint32 `json:"validator"`
}

type ValidatorLectReply struct {
	LectReply
	// Count is the length of the validator's lect log.
	Count json.Uint64 `json:"count"`
}

// GetValidatorLect returns the latest lect of an actual validator.
func (s *Service) GetValidatorLect(_ *http.Request, args *ValidatorArgs, reply *ValidatorLectReply) error {
	s.log.Debug("API called",
		log.String("service", serviceName),
		log.String("method", "getValidatorLect"),
		log.Uint32("validator", uint32(args.Validator)),
	)

	sch := s.state.Schema()
	cfg, err := sch.ActualConfig()
	if err != nil {
		return err
	}
	if int(args.Validator) >= len(cfg.Validators) {
		return fmt.Errorf("%w: %d", errUnknownValidator, args.Validator)
	}
	validator := cfg.Validators[args.Validator]
	lect, err := sch.Lect(validator)
	if err != nil {
		return err
	}
	count, err := sch.LectsLen(validator)
	if err != nil {
		return err
	}
	reply.set(lect)
	reply.Count = json.Uint64(count)
	return nil
}
