package tag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/utils"
)

// ImportRecord is one node entry of a bulk import file.
type ImportRecord struct {
	PublicKey string         `json:"public_key" validate:"required,len=64,hexadecimal"`
	Tags      map[string]any `json:"tags" validate:"required,min=1"`
}

// ImportFile is the on-disk shape of a bulk import.
type ImportFile struct {
	Nodes []ImportRecord `json:"nodes" validate:"required,min=1"`
}

// ImportError describes one failed tag write. TagKey is empty when the whole
// record was rejected before any tag was attempted.
type ImportError struct {
	PublicKey string `json:"public_key"`
	TagKey    string `json:"tag_key,omitempty"`
	Reason    string `json:"reason"`
}

// ImportSummary aggregates the outcome of a bulk import.
type ImportSummary struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Failed  int           `json:"failed"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// Importer applies bulk tag files through the tag service, one tag at a
// time, so bad records never roll back good ones.
type Importer struct {
	service *Service
	logger  logger.Interface
}

// NewImporter creates a bulk tag importer.
func NewImporter(service *Service, log logger.Interface) *Importer {
	return &Importer{
		service: service,
		logger:  log.Named("tag-import"),
	}
}

// ImportPath reads and applies a JSON tag file.
func (i *Importer) ImportPath(ctx context.Context, path string) (*ImportSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tag file: %w", err)
	}
	return i.Import(ctx, data)
}

// Import parses and applies a JSON tag document. Tag writes are independent:
// a failing record is collected into the summary and the rest still commit.
func (i *Importer) Import(ctx context.Context, data []byte) (*ImportSummary, error) {
	var file ImportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tag file: %w", err)
	}
	if err := utils.ValidateStruct(&file); err != nil {
		return nil, err
	}

	summary := &ImportSummary{}
	for _, rec := range file.Nodes {
		if err := utils.ValidateStruct(&rec); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, ImportError{
				PublicKey: rec.PublicKey,
				Reason:    err.Error(),
			})
			continue
		}
		for key, raw := range rec.Tags {
			_, created, err := i.service.Set(ctx, rec.PublicKey, key, raw)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, ImportError{
					PublicKey: rec.PublicKey,
					TagKey:    key,
					Reason:    err.Error(),
				})
				continue
			}
			if created {
				summary.Created++
			} else {
				summary.Updated++
			}
		}
	}

	i.logger.Infow("tag import finished",
		"nodes", len(file.Nodes),
		"created", summary.Created,
		"updated", summary.Updated,
		"failed", summary.Failed,
	)
	return summary, nil
}
