// Package memory provides in-process implementations of the repository store
// interfaces. Records live in maps guarded by a sync.RWMutex and are lost when
// the process exits; it backs `database.driver: memory` and the test harness.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vivadrive/organization-api/internal/db/models"
	"github.com/vivadrive/organization-api/internal/db/repositories"
)

// Store holds organizations and users. Callers always receive copies, so
// mutating a returned record never changes stored state.
type Store struct {
	mu sync.RWMutex

	orgs      map[int64]models.Organization
	nextOrgID int64

	users      map[int64]models.User
	nextUserID int64
}

// New returns an empty store. IDs start at 1.
func New() *Store {
	return &Store{
		orgs:  make(map[int64]models.Organization),
		users: make(map[int64]models.User),
	}
}

// Organizations returns the organization view of the store.
func (s *Store) Organizations() *OrganizationStore {
	return &OrganizationStore{s: s}
}

// Users returns the user view of the store.
func (s *Store) Users() *UserStore {
	return &UserStore{s: s}
}

// PingContext always succeeds unless ctx is already done.
func (s *Store) PingContext(ctx context.Context) error {
	return ctx.Err()
}

// OrganizationStore implements repositories.OrganizationStore over a Store.
type OrganizationStore struct {
	s *Store
}

var _ repositories.OrganizationStore = (*OrganizationStore)(nil)

func (o *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	o.s.nextOrgID++
	org.ID = o.s.nextOrgID
	o.s.orgs[org.ID] = *org
	return nil
}

func (o *OrganizationStore) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	org, ok := o.s.orgs[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func (o *OrganizationStore) List(ctx context.Context, offset, limit int) (*models.OrganizationPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("invalid page window: offset %d, limit %d", offset, limit)
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	ids := make([]int64, 0, len(o.s.orgs))
	for id := range o.s.orgs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	page := &models.OrganizationPage{Total: len(ids), Items: []*models.Organization{}}
	if offset >= len(ids) {
		return page, nil
	}
	end := offset + limit
	if end > len(ids) || end < offset {
		end = len(ids)
	}
	for _, id := range ids[offset:end] {
		org := o.s.orgs[id]
		page.Items = append(page.Items, &org)
	}
	return page, nil
}

func (o *OrganizationStore) Update(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if _, ok := o.s.orgs[org.ID]; !ok {
		return nil, nil
	}
	o.s.orgs[org.ID] = *org
	updated := *org
	return &updated, nil
}

func (o *OrganizationStore) Delete(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if _, ok := o.s.orgs[id]; !ok {
		return false, nil
	}
	delete(o.s.orgs, id)
	return true, nil
}

// DeleteAll empties the collection. IDs keep increasing afterwards.
func (o *OrganizationStore) DeleteAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	n := int64(len(o.s.orgs))
	o.s.orgs = make(map[int64]models.Organization)
	return n, nil
}

// UserStore implements repositories.UserStore over a Store.
type UserStore struct {
	s *Store
}

var _ repositories.UserStore = (*UserStore)(nil)

func (u *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, existing := range u.s.users {
		if existing.Username == user.Username {
			return repositories.ErrUsernameTaken
		}
	}
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}
	u.s.nextUserID++
	user.ID = u.s.nextUserID
	u.s.users[user.ID] = *user
	return nil
}

func (u *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// GetByUsername matches exactly; usernames are case sensitive.
func (u *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.Username == username {
			found := user
			return &found, nil
		}
	}
	return nil, nil
}

func (u *UserStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil
	}
	user.LastLogin = &at
	u.s.users[id] = user
	return nil
}

func (u *UserStore) Delete(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return false, nil
	}
	delete(u.s.users, id)
	return true, nil
}
