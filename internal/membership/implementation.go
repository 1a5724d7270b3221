// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"lendhub/internal/apperr"
	"lendhub/pkg/docstore"
	"lendhub/pkg/logger"
)

// service implements the Service interface.
type service struct {
	store docstore.Store
	log   *logger.Logger
	now   func() time.Time
}

// NewService creates a new membership service instance.
func NewService(store docstore.Store, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewDefault("membership")
	}
	return &service{store: store, log: log, now: time.Now}
}

// Register creates a new member. Emails are unique, compared case-insensitively.
func (s *service) Register(ctx context.Context, name, email string, role Role) (*Member, error) {
	const op = "membership.register"

	member, err := s.normalise(op, Member{ID: uuid.New(), Name: name, Email: email, Role: role})
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Query(ctx, Collection, docstore.Filter{"email": member.Email})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	if len(existing) > 0 {
		return nil, apperr.ConflictErr(op, ErrEmailTaken)
	}

	member.CreatedAt = s.now().UTC()
	if _, err := s.store.Insert(ctx, Collection, member.ID.String(), member); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("failed to store member: %w", err))
	}

	s.log.WithField("member_id", member.ID).WithField("role", member.Role).Info("member registered")
	return member, nil
}

func (s *service) normalise(op string, m Member) (*Member, error) {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(m.Email))
	if err != nil {
		return nil, apperr.Validation(op, fmt.Sprintf("invalid email %q", m.Email))
	}
	m.Email = strings.ToLower(addr.Address)
	role, err := ParseRole(string(m.Role))
	if err != nil {
		return nil, apperr.Validation(op, fmt.Sprintf("unknown role %q", m.Role))
	}
	m.Role = role
	return &m, nil
}

// GetMember retrieves a member by its ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	const op = "membership.get_member"

	if id == uuid.Nil {
		return nil, apperr.Validation(op, "member id is required")
	}
	doc, err := s.store.Get(ctx, Collection, id.String())
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFoundErr(op, ErrMemberNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	member := &Member{}
	if err := doc.Decode(member); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return member, nil
}

// DisplayName returns the member's name for message text.
func (s *service) DisplayName(ctx context.Context, id uuid.UUID) (string, error) {
	member, err := s.GetMember(ctx, id)
	if err != nil {
		return "", err
	}
	return member.Name, nil
}

// ListByRole returns members with role, ordered by name.
func (s *service) ListByRole(ctx context.Context, role Role) ([]*Member, error) {
	const op = "membership.list_by_role"

	if !role.Valid() {
		return nil, apperr.Validation(op, fmt.Sprintf("unknown role %q", role))
	}
	docs, err := s.store.Query(ctx, Collection, docstore.Filter{"role": role})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	members, err := docstore.DecodeAll[*Member](docs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].ID.String() < members[j].ID.String()
	})
	return members, nil
}

// StaffIDs returns the ids of every staff member and admin.
func (s *service) StaffIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, role := range []Role{RoleStaff, RoleAdmin} {
		members, err := s.ListByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

type roster struct {
	Members []Member `yaml:"members"`
}

// LoadRoster upserts the members listed in path. Entries without an id get
// one derived from their email so reloading the same file is stable.
func (s *service) LoadRoster(ctx context.Context, path string) (int, error) {
	const op = "membership.load_roster"

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("read roster: %w", err))
	}
	var r roster
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return 0, apperr.Validation(op, fmt.Sprintf("parse roster: %v", err))
	}

	now := s.now().UTC()
	records := make([]docstore.Record, 0, len(r.Members))
	for i, entry := range r.Members {
		member, err := s.normalise(op, entry)
		if err != nil {
			return 0, fmt.Errorf("roster entry %d: %w", i+1, err)
		}
		if member.ID == uuid.Nil {
			member.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+member.Email))
		}
		member.CreatedAt = now
		records = append(records, docstore.Record{ID: member.ID.String(), Value: member})
	}

	if err := s.store.PutBatch(ctx, Collection, records); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, op, err)
	}

	s.log.WithField("path", path).WithField("members", len(records)).Info("roster loaded")
	return len(records), nil
}
