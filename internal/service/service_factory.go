package service

import (
	"go.uber.org/zap"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	profiles ProfileStore
	records  RiskRecordStore
	location locationEnricher
	network  networkEnricher
	sink     *AnalyticsSink
	logger   *zap.Logger

	sessionService *SessionService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	profiles ProfileStore,
	records RiskRecordStore,
	location locationEnricher,
	network networkEnricher,
	sink *AnalyticsSink,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		profiles: profiles,
		records:  records,
		location: location,
		network:  network,
		sink:     sink,
		logger:   logger,
	}
}

// SessionService returns the session service instance (singleton)
func (f *ServiceFactory) SessionService() *SessionService {
	if f.sessionService == nil {
		f.sessionService = NewSessionService(
			f.profiles,
			f.records,
			f.location,
			f.network,
			f.sink,
		)
	}
	return f.sessionService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	f.sessionService = nil
}
