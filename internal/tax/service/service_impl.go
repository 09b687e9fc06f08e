package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Repository taxdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  taxdomain.Repository
}

func NewService(p ServiceParam) taxdomain.Service {
	return &Service{
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		repo:  p.Repository,
	}
}

// NewRegistry exposes the read path the invoice service consumes.
func NewRegistry(p ServiceParam) taxdomain.Registry {
	return &registry{repo: p.Repository}
}

type registry struct {
	repo taxdomain.Repository
}

func (r *registry) GetActiveTaxRates(ctx context.Context, orgID snowflake.ID) ([]taxdomain.TaxRate, error) {
	if orgID == 0 {
		return nil, taxdomain.ErrInvalidOrganization
	}
	return r.repo.ListActive(ctx, orgID)
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.TaxRate, error) {
	if req.OrgID == 0 {
		return nil, taxdomain.ErrInvalidOrganization
	}

	now := time.Now().UTC()
	rate := &taxdomain.TaxRate{
		ID:          s.genID.Generate(),
		OrgID:       req.OrgID,
		Name:        strings.TrimSpace(req.Name),
		Rate:        req.Rate,
		Description: req.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.IsActive != nil {
		rate.IsActive = *req.IsActive
	}
	if err := rate.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, rate); err != nil {
		return nil, err
	}

	s.log.Info("tax rate created",
		zap.String("tax_rate_id", rate.ID.String()),
		zap.String("name", rate.Name),
		zap.String("rate", rate.Rate.String()),
	)
	return rate, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	if orgID == 0 {
		return nil, taxdomain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, orgID, req)
}

func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.TaxRate, error) {
	rate, err := s.load(ctx, req.OrgID, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rate.Name = strings.TrimSpace(*req.Name)
	}
	if req.Rate != nil {
		rate.Rate = *req.Rate
	}
	if req.Description != nil {
		rate.Description = req.Description
	}
	if req.IsActive != nil {
		rate.IsActive = *req.IsActive
	}
	rate.UpdatedAt = time.Now().UTC()

	if err := rate.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rate); err != nil {
		return nil, err
	}
	return rate, nil
}

// Disable takes a rate out of circulation for new line items. Rates are
// never deleted: historical tax associations reference them by id.
func (s *Service) Disable(ctx context.Context, orgID snowflake.ID, id string) (*taxdomain.TaxRate, error) {
	rate, err := s.load(ctx, orgID, id)
	if err != nil {
		return nil, err
	}

	rate.IsActive = false
	rate.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, rate); err != nil {
		return nil, err
	}

	s.log.Info("tax rate disabled", zap.String("tax_rate_id", rate.ID.String()))
	return rate, nil
}

func (s *Service) load(ctx context.Context, orgID snowflake.ID, id string) (*taxdomain.TaxRate, error) {
	if orgID == 0 {
		return nil, taxdomain.ErrInvalidOrganization
	}
	rateID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, taxdomain.ErrInvalidID
	}
	rate, err := s.repo.FindByID(ctx, orgID, rateID)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, taxdomain.ErrNotFound
	}
	return rate, nil
}
