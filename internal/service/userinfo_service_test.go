package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian-service/internal/events"
	"guardian-service/internal/model"
	"guardian-service/internal/store"
	"guardian-service/internal/util"
)

type memUserStore struct {
	profiles map[string]*model.UserProfile
	medical  map[string]*model.MedicalInfo
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		profiles: make(map[string]*model.UserProfile),
		medical:  make(map[string]*model.MedicalInfo),
	}
}

func (s *memUserStore) GetProfile(_ context.Context, userID string) (*model.UserProfile, error) {
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *profile
	return &copied, nil
}

func (s *memUserStore) UpsertProfile(_ context.Context, profile *model.UserProfile) error {
	copied := *profile
	s.profiles[profile.ID] = &copied
	return nil
}

func (s *memUserStore) GetMedical(_ context.Context, userID string) (*model.MedicalInfo, error) {
	medical, ok := s.medical[userID]
	if !ok {
		return &model.MedicalInfo{}, nil
	}
	copied := *medical
	return &copied, nil
}

func (s *memUserStore) UpsertMedical(_ context.Context, userID string, medical *model.MedicalInfo) error {
	copied := *medical
	s.medical[userID] = &copied
	return nil
}

type memContactStore struct {
	contacts map[string][]model.EmergencyContact
	idemKeys map[string]string // idemKey -> contact id
	nextID   int
}

func newMemContactStore() *memContactStore {
	return &memContactStore{
		contacts: make(map[string][]model.EmergencyContact),
		idemKeys: make(map[string]string),
	}
}

func (s *memContactStore) List(_ context.Context, userID string) ([]model.EmergencyContact, error) {
	out := make([]model.EmergencyContact, len(s.contacts[userID]))
	copy(out, s.contacts[userID])
	return out, nil
}

func (s *memContactStore) Create(_ context.Context, userID string, contact *model.EmergencyContact, idemKey string) (*model.EmergencyContact, error) {
	// Mirrors the store's upsert contract: a durable id writes in place.
	if contact.ID != "" && !contact.IsLocalOnly() {
		updated := *contact
		for i, c := range s.contacts[userID] {
			if c.ID == updated.ID {
				s.contacts[userID][i] = updated
				return &updated, nil
			}
		}
		s.contacts[userID] = append(s.contacts[userID], updated)
		return &updated, nil
	}

	if idemKey != "" {
		if existingID, ok := s.idemKeys[idemKey]; ok {
			for _, c := range s.contacts[userID] {
				if c.ID == existingID {
					copied := c
					return &copied, nil
				}
			}
		}
	}

	s.nextID++
	created := *contact
	created.ID = "srv-" + strconv.Itoa(s.nextID)
	s.contacts[userID] = append(s.contacts[userID], created)
	if idemKey != "" {
		s.idemKeys[idemKey] = created.ID
	}
	return &created, nil
}

func (s *memContactStore) Delete(_ context.Context, userID, contactID string) error {
	list := s.contacts[userID]
	for i, c := range list {
		if c.ID == contactID {
			s.contacts[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memContactStore) Replace(_ context.Context, userID string, contacts []model.EmergencyContact) error {
	replaced := make([]model.EmergencyContact, len(contacts))
	copy(replaced, contacts)
	s.contacts[userID] = replaced
	return nil
}

type fakeSearcher struct {
	indexed []string
	removed []string
	results []model.EmergencyContact
}

func (f *fakeSearcher) Index(_ context.Context, _ string, contact *model.EmergencyContact) {
	f.indexed = append(f.indexed, contact.ID)
}

func (f *fakeSearcher) Remove(_ context.Context, _ string, contactID string) {
	f.removed = append(f.removed, contactID)
}

func (f *fakeSearcher) Search(_ context.Context, _ string, _ string, _ int) ([]model.EmergencyContact, error) {
	return f.results, nil
}

type memArchiver struct {
	err     error
	batches [][]model.LocationPoint
}

func (a *memArchiver) Append(_ context.Context, _ string, points []model.LocationPoint) error {
	if a.err != nil {
		return a.err
	}
	batch := make([]model.LocationPoint, len(points))
	copy(batch, points)
	a.batches = append(a.batches, batch)
	return nil
}

type userInfoFixture struct {
	svc      *UserInfoService
	users    *memUserStore
	contacts *memContactStore
	index    *fakeSearcher
	archiver *memArchiver
}

func newUserInfoServiceFixture() *userInfoFixture {
	f := &userInfoFixture{
		users:    newMemUserStore(),
		contacts: newMemContactStore(),
		index:    &fakeSearcher{},
		archiver: &memArchiver{},
	}
	f.svc = NewUserInfoService(f.users, f.contacts, f.index, f.archiver, events.NewAuditPublisher(nil, "sync-audit"))
	return f
}

func TestGetUserInfoUnknownUser(t *testing.T) {
	f := newUserInfoServiceFixture()

	_, err := f.svc.GetUserInfo(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUserInfoAggregates(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	require.NoError(t, f.users.UpsertProfile(ctx, &model.UserProfile{ID: "u1", Name: "Asha", Email: "asha@example.com"}))
	require.NoError(t, f.users.UpsertMedical(ctx, "u1", &model.MedicalInfo{BloodGroup: "O+"}))
	require.NoError(t, f.contacts.Replace(ctx, "u1", []model.EmergencyContact{{ID: "c1", Name: "Maya", Phone: "1112223333"}}))

	info, err := f.svc.GetUserInfo(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", info.Profile.Name)
	assert.Equal(t, "O+", info.Medical.BloodGroup)
	require.Len(t, info.Contacts, 1)
}

func TestApplyPatchCreatesProfileOnFirstWrite(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	name := "Asha"
	info, err := f.svc.ApplyPatch(ctx, "u1", &model.UserInfoPatch{Profile: &model.ProfilePatch{Name: &name}})
	require.NoError(t, err)
	assert.Equal(t, "u1", info.Profile.ID)
	assert.Equal(t, "Asha", info.Profile.Name)
}

func TestApplyPatchLeavesAbsentSectionsAlone(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	require.NoError(t, f.users.UpsertProfile(ctx, &model.UserProfile{ID: "u1", Name: "Asha", Email: "asha@example.com", Phone: "9876543210"}))
	require.NoError(t, f.users.UpsertMedical(ctx, "u1", &model.MedicalInfo{BloodGroup: "O+"}))

	blood := "AB-"
	info, err := f.svc.ApplyPatch(ctx, "u1", &model.UserInfoPatch{Medical: &model.MedicalPatch{BloodGroup: &blood}})
	require.NoError(t, err)

	assert.Equal(t, "AB-", info.Medical.BloodGroup)
	assert.Equal(t, "Asha", info.Profile.Name)
	assert.Equal(t, "9876543210", info.Profile.Phone)
}

func TestApplyPatchClearsPhoneWithEmptyPointer(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	require.NoError(t, f.users.UpsertProfile(ctx, &model.UserProfile{ID: "u1", Name: "Asha", Phone: "9876543210"}))

	empty := ""
	info, err := f.svc.ApplyPatch(ctx, "u1", &model.UserInfoPatch{Profile: &model.ProfilePatch{Phone: &empty}})
	require.NoError(t, err)
	assert.Empty(t, info.Profile.Phone)
	assert.Equal(t, "Asha", info.Profile.Name)
}

func TestApplyPatchValidation(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	blank := "  "
	badPhone := "123"

	tests := []struct {
		name  string
		patch *model.UserInfoPatch
		field string
	}{
		{"blank name", &model.UserInfoPatch{Profile: &model.ProfilePatch{Name: &blank}}, "userInfo.name"},
		{"bad phone", &model.UserInfoPatch{Profile: &model.ProfilePatch{Phone: &badPhone}}, "userInfo.phone"},
		{"bad medical phone", &model.UserInfoPatch{Medical: &model.MedicalPatch{EmergencyContactPhone: &badPhone}}, "medicalInfo.emergency_contact_phone"},
		{"bad embedded contact", &model.UserInfoPatch{Contacts: []model.EmergencyContact{{Name: "", Phone: "12"}}}, "emergencyContacts[0].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ApplyPatch(ctx, "u1", tt.patch)
			var verr *util.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}
}

func TestApplyPatchReplacesContactsWholesale(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	require.NoError(t, f.users.UpsertProfile(ctx, &model.UserProfile{ID: "u1", Name: "Asha"}))
	require.NoError(t, f.contacts.Replace(ctx, "u1", []model.EmergencyContact{
		{ID: "old-1", Name: "Old", Phone: "1112223333"},
	}))

	info, err := f.svc.ApplyPatch(ctx, "u1", &model.UserInfoPatch{Contacts: []model.EmergencyContact{
		{ID: model.TempIDPrefix + "x", Name: "Maya", Phone: "1112223333"},
		{ID: "kept-1", Name: "Priya", Phone: "4445556666"},
	}})
	require.NoError(t, err)
	require.Len(t, info.Contacts, 2)

	// Temp ids were replaced with durable ones before the write.
	for _, c := range info.Contacts {
		assert.False(t, c.IsLocalOnly())
	}

	// Dropped contacts leave the search index, kept ones are re-indexed.
	assert.Contains(t, f.index.removed, "old-1")
	assert.Len(t, f.index.indexed, 2)
}

func TestCreateContactIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	first, err := f.svc.CreateContact(ctx, "u1", &model.EmergencyContact{Name: "Maya", Phone: "1112223333"}, "key-1")
	require.NoError(t, err)

	// A replayed mutation with the same key converges on the same row.
	second, err := f.svc.CreateContact(ctx, "u1", &model.EmergencyContact{Name: "Maya", Phone: "1112223333"}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	listed, err := f.svc.ListContacts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestCreateContactDurableIDEditsInPlace(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	created, err := f.svc.CreateContact(ctx, "u1", &model.EmergencyContact{Name: "Maya", Phone: "1112223333"}, "key-1")
	require.NoError(t, err)

	edited, err := f.svc.CreateContact(ctx, "u1", &model.EmergencyContact{
		ID: created.ID, Name: "Maya", Phone: "4445556666",
	}, "key-2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, edited.ID)

	listed, err := f.svc.ListContacts(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "4445556666", listed[0].Phone)
}

func TestDeleteContactNotFound(t *testing.T) {
	f := newUserInfoServiceFixture()

	err := f.svc.DeleteContact(context.Background(), "u1", "absent")
	assert.ErrorIs(t, err, ErrContactNotFound)
}

func TestSearchContactsEmptyTermListsAll(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()
	f.index.results = []model.EmergencyContact{{ID: "hit-1"}}

	require.NoError(t, f.contacts.Replace(ctx, "u1", []model.EmergencyContact{
		{ID: "c1"}, {ID: "c2"},
	}))

	all, err := f.svc.SearchContacts(ctx, "u1", "   ", 20)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hits, err := f.svc.SearchContacts(ctx, "u1", "maya", 20)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "hit-1", hits[0].ID)
}

func TestRecordLocationsValidatesCoordinates(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	err := f.svc.RecordLocations(ctx, "u1", []model.LocationPoint{
		{Latitude: 12.97, Longitude: 77.59},
		{Latitude: 91, Longitude: 200},
	})
	var verr *util.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "locations[1].latitude", verr.Fields[0].Field)
	assert.Equal(t, "locations[1].longitude", verr.Fields[1].Field)
	assert.Empty(t, f.archiver.batches)
}

func TestRecordLocationsFillsDefaultsAndArchives(t *testing.T) {
	ctx := context.Background()
	f := newUserInfoServiceFixture()

	require.NoError(t, f.svc.RecordLocations(ctx, "u1", []model.LocationPoint{
		{Latitude: 12.97, Longitude: 77.59},
	}))

	require.Len(t, f.archiver.batches, 1)
	point := f.archiver.batches[0][0]
	assert.NotEmpty(t, point.ID)
	assert.NotZero(t, point.Timestamp)
}

func TestRecordLocationsArchiveFailurePropagates(t *testing.T) {
	f := newUserInfoServiceFixture()
	f.archiver.err = errors.New("clickhouse unavailable")

	err := f.svc.RecordLocations(context.Background(), "u1", []model.LocationPoint{
		{Latitude: 12.97, Longitude: 77.59},
	})
	assert.Error(t, err)
}
