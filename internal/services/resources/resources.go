package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// Directory categories.
const (
	CategoryCrisisHotlines  = "crisis_hotlines"
	CategoryHospitals       = "hospitals"
	CategoryOnlineResources = "online_resources"
	CategorySupportGroups   = "support_groups"
)

// ErrUnknownCategory is returned for category names outside the directory.
var ErrUnknownCategory = errors.New("unknown resource category")

// Service exposes the Kenya mental health resource directory.
type Service interface {
	Directory(ctx context.Context) (*models.ResourceDirectory, error)
	Category(ctx context.Context, category string) ([]models.Resource, error)
	CrisisContacts(ctx context.Context) ([]string, error)
}

// DirectoryService serves the directory held by the storage layer, which
// seeds the default Kenya entries on first run.
type DirectoryService struct {
	storage *storage.Manager
	logger  *logrus.Logger
}

// NewService creates the resource directory service.
func NewService(storage *storage.Manager, logger *logrus.Logger) Service {
	return &DirectoryService{
		storage: storage,
		logger:  logger,
	}
}

// Directory returns the full categorized directory.
func (s *DirectoryService) Directory(ctx context.Context) (*models.ResourceDirectory, error) {
	directory, err := s.storage.GetResources(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load resource directory")
		return nil, fmt.Errorf("failed to load resource directory: %w", err)
	}
	return directory, nil
}

// Category returns one category of the directory.
func (s *DirectoryService) Category(ctx context.Context, category string) ([]models.Resource, error) {
	directory, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}

	switch category {
	case CategoryCrisisHotlines:
		return directory.CrisisHotlines, nil
	case CategoryHospitals:
		return directory.Hospitals, nil
	case CategoryOnlineResources:
		return directory.OnlineResources, nil
	case CategorySupportGroups:
		return directory.SupportGroups, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
}

// CrisisContacts returns the hotlines formatted as display lines.
func (s *DirectoryService) CrisisContacts(ctx context.Context) ([]string, error) {
	directory, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]string, 0, len(directory.CrisisHotlines))
	for _, hotline := range directory.CrisisHotlines {
		contacts = append(contacts, fmt.Sprintf("📞 %s: %s", hotline.Name, hotline.Number))
	}
	return contacts, nil
}
