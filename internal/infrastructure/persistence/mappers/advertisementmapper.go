package mappers

import (
	"meshbridge/internal/domain/record"
	"meshbridge/internal/infrastructure/persistence/models"
)

// AdvertisementMapper handles the conversion between advertisements and
// persistence models.
type AdvertisementMapper interface {
	ToModel(a *record.Advertisement) *models.AdvertisementModel
	ToDomain(model *models.AdvertisementModel) *record.Advertisement
	ToDomains(ms []*models.AdvertisementModel) []*record.Advertisement
}

// AdvertisementMapperImpl is the concrete implementation of AdvertisementMapper.
type AdvertisementMapperImpl struct{}

// NewAdvertisementMapper creates a new advertisement mapper.
func NewAdvertisementMapper() AdvertisementMapper {
	return &AdvertisementMapperImpl{}
}

// ToModel converts an advertisement entity to its persistence model.
func (m *AdvertisementMapperImpl) ToModel(a *record.Advertisement) *models.AdvertisementModel {
	var advType *string
	if a.AdvType() != nil {
		s := string(*a.AdvType())
		advType = &s
	}
	return &models.AdvertisementModel{
		ID:         a.ID(),
		PublicKey:  a.PublicKey(),
		AdvType:    advType,
		Name:       a.Name(),
		Flags:      a.Flags(),
		ReceivedAt: a.ReceivedAt(),
	}
}

// ToDomain converts a persistence model to an advertisement entity.
func (m *AdvertisementMapperImpl) ToDomain(model *models.AdvertisementModel) *record.Advertisement {
	var advType *record.AdvType
	if model.AdvType != nil {
		t := record.AdvType(*model.AdvType)
		advType = &t
	}
	return record.ReconstructAdvertisement(
		model.ID,
		model.PublicKey,
		advType,
		model.Name,
		model.Flags,
		model.ReceivedAt,
	)
}

// ToDomains converts a slice of persistence models.
func (m *AdvertisementMapperImpl) ToDomains(ms []*models.AdvertisementModel) []*record.Advertisement {
	out := make([]*record.Advertisement, 0, len(ms))
	for _, model := range ms {
		out = append(out, m.ToDomain(model))
	}
	return out
}
