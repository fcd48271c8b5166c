// Package registry owns webhook definitions: validation, secret generation,
// owner scoping, and the derived stats annotation on list responses.
package registry

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net/url"

	"github.com/rs/zerolog/log"

	apperrors "beacon/internal/pkg/errors"
	"beacon/internal/platform/models"
	"beacon/internal/platform/repositories"
)

const statsWindow = 100

type Service struct {
	webhooks   *repositories.WebhookRepository
	deliveries *repositories.DeliveryRepository
}

func NewService(webhooks *repositories.WebhookRepository, deliveries *repositories.DeliveryRepository) *Service {
	return &Service{webhooks: webhooks, deliveries: deliveries}
}

type CreateInput struct {
	Name      string                 `json:"name"`
	URL       string                 `json:"url"`
	Events    []string               `json:"events"`
	Secret    string                 `json:"secret,omitempty"`
	Headers   map[string]string      `json:"headers,omitempty"`
	Transform *models.TransformRules `json:"transform,omitempty"`
}

func (s *Service) Create(ownerID string, input CreateInput) (*models.Webhook, error) {
	if err := validateInput(input.Name, input.URL, input.Events); err != nil {
		return nil, err
	}

	secret := input.Secret
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
	}

	webhook := &models.Webhook{
		OwnerID:   ownerID,
		Name:      input.Name,
		URL:       input.URL,
		Events:    input.Events,
		Secret:    secret,
		Headers:   input.Headers,
		Transform: input.Transform,
	}
	if err := s.webhooks.Create(webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// List returns the owner's definitions, each annotated with a stats summary
// derived from the delivery log. A stats query failure degrades to zeroed
// stats rather than failing the listing.
func (s *Service) List(ownerID string, filters repositories.ListFilters) ([]*models.WebhookWithStats, error) {
	webhooks, err := s.webhooks.List(ownerID, filters)
	if err != nil {
		return nil, err
	}

	annotated := make([]*models.WebhookWithStats, 0, len(webhooks))
	for _, w := range webhooks {
		stats, err := s.deliveries.Stats(w.ID, statsWindow)
		if err != nil {
			log.Warn().Err(err).Str("webhook_id", w.ID).Msg("failed to compute webhook stats")
		}
		annotated = append(annotated, &models.WebhookWithStats{Webhook: w, Stats: stats})
	}
	return annotated, nil
}

func (s *Service) Get(ownerID, id string) (*models.Webhook, error) {
	webhook, err := s.webhooks.GetByID(ownerID, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("webhook", id)
	}
	if err != nil {
		return nil, err
	}
	return webhook, nil
}

type UpdateInput struct {
	Name      *string                `json:"name,omitempty"`
	URL       *string                `json:"url,omitempty"`
	Events    []string               `json:"events,omitempty"`
	Secret    *string                `json:"secret,omitempty"`
	Active    *bool                  `json:"active,omitempty"`
	Headers   map[string]string      `json:"headers,omitempty"`
	Transform *models.TransformRules `json:"transform,omitempty"`
}

func (s *Service) Update(ownerID, id string, input UpdateInput) (*models.Webhook, error) {
	webhook, err := s.Get(ownerID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		webhook.Name = *input.Name
	}
	if input.URL != nil {
		webhook.URL = *input.URL
	}
	if len(input.Events) > 0 {
		webhook.Events = input.Events
	}
	if input.Secret != nil && *input.Secret != "" {
		webhook.Secret = *input.Secret
	}
	if input.Active != nil {
		webhook.Active = *input.Active
	}
	if input.Headers != nil {
		webhook.Headers = input.Headers
	}
	if input.Transform != nil {
		webhook.Transform = input.Transform
	}

	if err := validateInput(webhook.Name, webhook.URL, webhook.Events); err != nil {
		return nil, err
	}
	if err := s.webhooks.Update(webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *Service) Delete(ownerID, id string) error {
	err := s.webhooks.Delete(ownerID, id)
	if err == sql.ErrNoRows {
		return apperrors.NewNotFoundError("webhook", id)
	}
	return err
}

func validateInput(name, target string, events []string) error {
	if name == "" {
		return apperrors.NewValidationError("name", "must not be empty")
	}
	if len(events) == 0 {
		return apperrors.NewValidationError("events", "must contain at least one event name")
	}
	for _, e := range events {
		if e == "" {
			return apperrors.NewValidationError("events", "event names must not be empty")
		}
	}

	u, err := url.Parse(target)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return apperrors.NewValidationError("url", "must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.NewValidationError("url", "scheme must be http or https")
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
