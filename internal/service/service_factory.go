package service

import (
	"guardian-service/internal/archive"
	"guardian-service/internal/config"
	"guardian-service/internal/events"
	"guardian-service/internal/hashing"
	"guardian-service/internal/search"
	"guardian-service/internal/store"
)

// ServiceFactory creates and holds service singletons.
type ServiceFactory struct {
	users    *store.UserStore
	contacts *store.ContactStore
	sessions *store.SessionStore
	index    *search.ContactIndex
	archive  *archive.LocationArchive
	hasher   *hashing.Hasher
	audit    *events.AuditPublisher
	config   *config.Config

	userInfoService   *UserInfoService
	sharedDataService *SharedDataService
}

func NewServiceFactory(
	users *store.UserStore,
	contacts *store.ContactStore,
	sessions *store.SessionStore,
	index *search.ContactIndex,
	locationArchive *archive.LocationArchive,
	hasher *hashing.Hasher,
	audit *events.AuditPublisher,
	cfg *config.Config,
) *ServiceFactory {
	return &ServiceFactory{
		users:    users,
		contacts: contacts,
		sessions: sessions,
		index:    index,
		archive:  locationArchive,
		hasher:   hasher,
		audit:    audit,
		config:   cfg,
	}
}

func (f *ServiceFactory) UserInfoService() *UserInfoService {
	if f.userInfoService == nil {
		f.userInfoService = NewUserInfoService(f.users, f.contacts, f.index, f.archive, f.audit)
	}
	return f.userInfoService
}

func (f *ServiceFactory) SharedDataService() *SharedDataService {
	if f.sharedDataService == nil {
		f.sharedDataService = NewSharedDataService(f.sessions, f.archive, f.hasher, f.audit, &f.config.SharedData)
	}
	return f.sharedDataService
}
