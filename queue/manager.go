package queue

import (
	"go.uber.org/zap"

	"github.com/waitline/waitline/errors"
)

// Manager owns queue CRUD and the access-token lifecycle: the secret is
// minted when a queue becomes TOKEN_BASED and cleared when it stops
// being one.
type Manager struct {
	store  *Store
	logger *zap.SugaredLogger
}

// NewManager creates a queue manager.
func NewManager(store *Store, logger *zap.SugaredLogger) *Manager {
	return &Manager{store: store, logger: logger}
}

// CreateParams are the caller-supplied fields for a new queue.
type CreateParams struct {
	Name           string `json:"name"`
	Type           Type   `json:"queue_type"`
	Status         Status `json:"status"`
	MaxCapacity    *int   `json:"max_capacity"`
	OwnerUserID    *int64 `json:"owner_user_id"`
	OwnerServiceID *int64 `json:"owner_service_id"`
	OwnerOrgID     *int64 `json:"owner_org_id"`
}

// UpdateParams are the mutable fields of a queue. Nil means unchanged.
type UpdateParams struct {
	Name        *string `json:"name"`
	Type        *Type   `json:"queue_type"`
	Status      *Status `json:"status"`
	MaxCapacity *int    `json:"max_capacity"`
}

// Create validates and persists a new queue. TOKEN_BASED queues get
// their access token minted here.
func (m *Manager) Create(params CreateParams) (*Queue, error) {
	if params.Name == "" {
		return nil, errors.New("queue name is required")
	}
	if params.Type == "" {
		params.Type = TypeGeneral
	}
	if !params.Type.Valid() {
		return nil, errors.Newf("invalid queue type %q", params.Type)
	}
	if params.Status == "" {
		params.Status = StatusOpen
	}
	if !params.Status.Valid() {
		return nil, errors.Newf("invalid queue status %q", params.Status)
	}

	q := &Queue{
		Name:           params.Name,
		Type:           params.Type,
		Status:         params.Status,
		MaxCapacity:    params.MaxCapacity,
		OwnerUserID:    params.OwnerUserID,
		OwnerServiceID: params.OwnerServiceID,
		OwnerOrgID:     params.OwnerOrgID,
	}

	if q.Type == TypeTokenBased {
		token, err := NewAccessToken()
		if err != nil {
			return nil, err
		}
		q.AccessToken = &token
	}

	if err := m.store.CreateQueue(q); err != nil {
		return nil, err
	}

	if m.logger != nil {
		m.logger.Infow("Queue created",
			"queue_id", q.ID,
			"name", q.Name,
			"queue_type", q.Type,
		)
	}
	return q, nil
}

// Get retrieves a queue by id.
func (m *Manager) Get(id int64) (*Queue, error) {
	return m.store.GetQueue(id)
}

// List returns all queues.
func (m *Manager) List() ([]*Queue, error) {
	return m.store.ListQueues()
}

// Update applies partial changes. Changing the type into TOKEN_BASED
// mints a fresh access token; changing away clears it.
func (m *Manager) Update(id int64, params UpdateParams) (*Queue, error) {
	q, err := m.store.GetQueue(id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		if *params.Name == "" {
			return nil, errors.New("queue name is required")
		}
		q.Name = *params.Name
	}
	if params.Status != nil {
		if !params.Status.Valid() {
			return nil, errors.Newf("invalid queue status %q", *params.Status)
		}
		q.Status = *params.Status
	}
	if params.MaxCapacity != nil {
		q.MaxCapacity = params.MaxCapacity
	}
	if params.Type != nil && *params.Type != q.Type {
		if !params.Type.Valid() {
			return nil, errors.Newf("invalid queue type %q", *params.Type)
		}
		switch {
		case *params.Type == TypeTokenBased:
			token, err := NewAccessToken()
			if err != nil {
				return nil, err
			}
			q.AccessToken = &token
		case q.Type == TypeTokenBased:
			q.AccessToken = nil
		}
		q.Type = *params.Type
	}

	if err := m.store.UpdateQueue(q); err != nil {
		return nil, err
	}
	return q, nil
}

// Delete removes a queue and, via cascade, its live tickets. The
// history archive is left intact.
func (m *Manager) Delete(id int64) error {
	if err := m.store.DeleteQueue(id); err != nil {
		return err
	}
	if m.logger != nil {
		m.logger.Infow("Queue deleted", "queue_id", id)
	}
	return nil
}

// AccessInfo returns the owner-only secret and join link for a
// TOKEN_BASED queue.
func (m *Manager) AccessInfo(id int64, frontendBase string) (*AccessInfo, error) {
	q, err := m.store.GetQueue(id)
	if err != nil {
		return nil, err
	}
	if q.Type != TypeTokenBased || q.AccessToken == nil {
		return nil, errors.NewForbidden("queue %d has no access token", id)
	}
	return &AccessInfo{
		AccessToken: *q.AccessToken,
		QRCodeURL:   JoinURL(frontendBase, q.ID, *q.AccessToken),
	}, nil
}
