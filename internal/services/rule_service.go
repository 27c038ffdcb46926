package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"financeos/internal/core"
	"financeos/internal/storage"
)

// RuleService manages recurring bill rules.
type RuleService struct {
	store       storage.RuleStore
	invalidator Invalidator
}

func NewRuleService(store storage.RuleStore, invalidator Invalidator) *RuleService {
	return &RuleService{store: store, invalidator: invalidator}
}

func (s *RuleService) List(ctx context.Context, accountID string, activeOnly bool) ([]core.RecurringRule, error) {
	rules, err := s.store.ListRules(ctx, accountID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// Create assigns an ID when missing, validates and stores the rule.
func (s *RuleService) Create(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if strings.TrimSpace(rule.ID) == "" {
		rule.ID = uuid.NewString()
	}
	if strings.TrimSpace(rule.Category) == "" {
		rule.Category = core.DefaultCategory
	}
	rule.NextDueDate = core.DateOf(rule.NextDueDate.Time)
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return core.RecurringRule{}, fmt.Errorf("create rule: %w", err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(rule.AccountID)
	}
	return rule, nil
}
