package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guardian-service/internal/events"
	"guardian-service/internal/model"
	"guardian-service/internal/store"
	"guardian-service/internal/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrContactNotFound = errors.New("contact not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// Store interfaces the service consumes; the store package's concrete
// types satisfy them, tests substitute fakes.

type UserStore interface {
	GetProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UpsertProfile(ctx context.Context, profile *model.UserProfile) error
	GetMedical(ctx context.Context, userID string) (*model.MedicalInfo, error)
	UpsertMedical(ctx context.Context, userID string, medical *model.MedicalInfo) error
}

type ContactStore interface {
	List(ctx context.Context, userID string) ([]model.EmergencyContact, error)
	Create(ctx context.Context, userID string, contact *model.EmergencyContact, idemKey string) (*model.EmergencyContact, error)
	Delete(ctx context.Context, userID, contactID string) error
	Replace(ctx context.Context, userID string, contacts []model.EmergencyContact) error
}

// ContactSearcher mirrors search.ContactIndex: indexing is best effort
// and returns nothing, only queries can fail.
type ContactSearcher interface {
	Index(ctx context.Context, userID string, contact *model.EmergencyContact)
	Remove(ctx context.Context, userID, contactID string)
	Search(ctx context.Context, userID, term string, limit int) ([]model.EmergencyContact, error)
}

// LocationArchiver is the write half of the archive;
// archive.LocationArchive satisfies it alongside LocationReader.
type LocationArchiver interface {
	Append(ctx context.Context, userID string, points []model.LocationPoint) error
}

// UserInfoService serves the user-info aggregate: profile, medical info,
// and emergency contacts, loaded together and patched partially.
type UserInfoService struct {
	users    UserStore
	contacts ContactStore
	index    ContactSearcher
	archive  LocationArchiver
	audit    *events.AuditPublisher
}

func NewUserInfoService(
	users UserStore,
	contacts ContactStore,
	index ContactSearcher,
	locationArchive LocationArchiver,
	audit *events.AuditPublisher,
) *UserInfoService {
	return &UserInfoService{
		users:    users,
		contacts: contacts,
		index:    index,
		archive:  locationArchive,
		audit:    audit,
	}
}

// GetUserInfo loads the aggregate with the three reads in flight at once.
func (s *UserInfoService) GetUserInfo(ctx context.Context, userID string) (*model.UserInfo, error) {
	var info model.UserInfo

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		profile, err := s.users.GetProfile(gctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		info.Profile = *profile
		return nil
	})

	g.Go(func() error {
		medical, err := s.users.GetMedical(gctx, userID)
		if err != nil {
			return err
		}
		info.Medical = *medical
		return nil
	})

	g.Go(func() error {
		contacts, err := s.contacts.List(gctx, userID)
		if err != nil {
			return err
		}
		info.Contacts = contacts
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &info, nil
}

// ApplyPatch merges a partial update into the stored aggregate and returns
// the result. Absent sections are untouched; a present contacts list
// replaces the stored list wholesale in one batch.
func (s *UserInfoService) ApplyPatch(ctx context.Context, userID string, patch *model.UserInfoPatch) (*model.UserInfo, error) {
	if err := s.validatePatch(patch); err != nil {
		return nil, err
	}

	if patch.Profile != nil {
		profile, err := s.users.GetProfile(ctx, userID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			// First write creates the profile
			profile = &model.UserProfile{ID: userID}
		}
		updated := patch.Profile.Apply(*profile)
		if err := s.users.UpsertProfile(ctx, &updated); err != nil {
			return nil, err
		}
		s.audit.Publish(ctx, model.SyncAuditEvent{
			UserID: userID, Entity: "profile", Operation: "patch", Status: events.StatusApplied,
		})
	}

	if patch.Medical != nil {
		medical, err := s.users.GetMedical(ctx, userID)
		if err != nil {
			return nil, err
		}
		updated := patch.Medical.Apply(*medical)
		if err := s.users.UpsertMedical(ctx, userID, &updated); err != nil {
			return nil, err
		}
		s.audit.Publish(ctx, model.SyncAuditEvent{
			UserID: userID, Entity: "medical", Operation: "patch", Status: events.StatusApplied,
		})
	}

	if patch.Contacts != nil {
		replaced, err := s.replaceContacts(ctx, userID, patch.Contacts)
		if err != nil {
			return nil, err
		}
		s.audit.Publish(ctx, model.SyncAuditEvent{
			UserID: userID, Entity: "contacts", Operation: "replace", Status: events.StatusApplied,
			Detail: fmt.Sprintf("count=%d", len(replaced)),
		})
	}

	return s.GetUserInfo(ctx, userID)
}

// replaceContacts assigns durable ids to any client-generated temp ids
// before the batch write, then refreshes the search index.
func (s *UserInfoService) replaceContacts(ctx context.Context, userID string, contacts []model.EmergencyContact) ([]model.EmergencyContact, error) {
	previous, err := s.contacts.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	replaced := make([]model.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if c.IsLocalOnly() || c.ID == "" {
			c.ID = uuid.New().String()
			c.CreatedAt = now
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		replaced = append(replaced, c)
	}

	if err := s.contacts.Replace(ctx, userID, replaced); err != nil {
		return nil, err
	}

	kept := make(map[string]bool, len(replaced))
	for i := range replaced {
		kept[replaced[i].ID] = true
		s.index.Index(ctx, userID, &replaced[i])
	}
	for _, old := range previous {
		if !kept[old.ID] {
			s.index.Remove(ctx, userID, old.ID)
		}
	}

	return replaced, nil
}

func (s *UserInfoService) ListContacts(ctx context.Context, userID string) ([]model.EmergencyContact, error) {
	return s.contacts.List(ctx, userID)
}

// CreateContact inserts one contact. The idempotency key makes queued
// client retries converge on a single durable row.
func (s *UserInfoService) CreateContact(ctx context.Context, userID string, contact *model.EmergencyContact, idemKey string) (*model.EmergencyContact, error) {
	if err := s.validateContact(contact); err != nil {
		return nil, err
	}

	created, err := s.contacts.Create(ctx, userID, contact, idemKey)
	if err != nil {
		return nil, err
	}

	s.index.Index(ctx, userID, created)
	s.audit.Publish(ctx, model.SyncAuditEvent{
		UserID: userID, Entity: "contacts", Operation: "create", Status: events.StatusApplied,
		Detail: created.ID,
	})
	return created, nil
}

func (s *UserInfoService) DeleteContact(ctx context.Context, userID, contactID string) error {
	if err := s.contacts.Delete(ctx, userID, contactID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrContactNotFound
		}
		return err
	}

	s.index.Remove(ctx, userID, contactID)
	s.audit.Publish(ctx, model.SyncAuditEvent{
		UserID: userID, Entity: "contacts", Operation: "delete", Status: events.StatusApplied,
		Detail: contactID,
	})
	return nil
}

func (s *UserInfoService) SearchContacts(ctx context.Context, userID, term string, limit int) ([]model.EmergencyContact, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.contacts.List(ctx, userID)
	}
	return s.index.Search(ctx, userID, term, limit)
}

// RecordLocations appends a batch of points to the archive.
func (s *UserInfoService) RecordLocations(ctx context.Context, userID string, points []model.LocationPoint) error {
	verr := &util.ValidationError{}
	for i, p := range points {
		if p.Latitude < -90 || p.Latitude > 90 {
			verr.Add(fmt.Sprintf("locations[%d].latitude", i), "must be between -90 and 90")
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			verr.Add(fmt.Sprintf("locations[%d].longitude", i), "must be between -180 and 180")
		}
	}
	if verr.HasErrors() {
		return verr
	}

	for i := range points {
		if points[i].ID == "" {
			points[i].ID = uuid.New().String()
		}
		if points[i].Timestamp == 0 {
			points[i].Timestamp = time.Now().UnixMilli()
		}
	}

	if err := s.archive.Append(ctx, userID, points); err != nil {
		s.audit.Publish(ctx, model.SyncAuditEvent{
			UserID: userID, Entity: "locations", Operation: "append", Status: events.StatusRejected,
			Detail: err.Error(),
		})
		return err
	}

	s.audit.Publish(ctx, model.SyncAuditEvent{
		UserID: userID, Entity: "locations", Operation: "append", Status: events.StatusApplied,
		Detail: fmt.Sprintf("count=%d", len(points)),
	})
	return nil
}

func (s *UserInfoService) validatePatch(patch *model.UserInfoPatch) error {
	verr := &util.ValidationError{}

	if patch.Profile != nil {
		if patch.Profile.Name != nil {
			name := util.SanitizeInput(*patch.Profile.Name)
			if name == "" {
				verr.Add("userInfo.name", "must not be empty")
			}
			patch.Profile.Name = &name
		}
		if patch.Profile.Phone != nil {
			// An empty pointer clears the phone; only a non-empty value
			// has a format to check.
			phone := util.NormalizePhone(*patch.Profile.Phone)
			if phone != "" && !util.IsValidPhone(phone) {
				verr.Add("userInfo.phone", "must be a 10-digit phone number")
			}
			patch.Profile.Phone = &phone
		}
	}

	if patch.Medical != nil && patch.Medical.EmergencyContactPhone != nil {
		phone := util.NormalizePhone(*patch.Medical.EmergencyContactPhone)
		if phone != "" && !util.IsValidPhone(phone) {
			verr.Add("medicalInfo.emergency_contact_phone", "must be a 10-digit phone number")
		}
		patch.Medical.EmergencyContactPhone = &phone
	}

	for i := range patch.Contacts {
		if err := s.validateContact(&patch.Contacts[i]); err != nil {
			var nested *util.ValidationError
			if errors.As(err, &nested) {
				for _, f := range nested.Fields {
					verr.Add(fmt.Sprintf("emergencyContacts[%d].%s", i, f.Field), f.Message)
				}
			} else {
				return err
			}
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func (s *UserInfoService) validateContact(contact *model.EmergencyContact) error {
	verr := &util.ValidationError{}

	contact.Name = util.SanitizeInput(contact.Name)
	if contact.Name == "" {
		verr.Add("name", "must not be empty")
	}

	contact.Phone = util.NormalizePhone(contact.Phone)
	if !util.IsValidPhone(contact.Phone) {
		verr.Add("phone", "must be a 10-digit phone number")
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}
