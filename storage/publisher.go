package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"community-orchestrator/core/errors"
	"community-orchestrator/core/logging"
	"community-orchestrator/core/models"
)

// ArtifactRecorder persists where an artifact was published.
type ArtifactRecorder interface {
	CreateArtifact(ctx context.Context, a models.Artifact) error
}

// SummaryRecorder persists the latest analysis summary of a community.
type SummaryRecorder interface {
	SaveSummary(ctx context.Context, res *models.CommunityAnalysisResult) error
}

// File is a local run output to publish.
type File struct {
	Type models.ArtifactType
	Path string
}

// Publisher uploads run outputs and records them. Every collaborator is
// optional; a Publisher with none configured does nothing.
type Publisher struct {
	store     ArtifactStore
	artifacts ArtifactRecorder
	summaries SummaryRecorder
	prefix    string
	logger    *logging.Logger
	now       func() time.Time
}

// NewPublisher creates a new artifact publisher
func NewPublisher(store ArtifactStore, artifacts ArtifactRecorder, summaries SummaryRecorder, prefix string, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Publisher{
		store:     store,
		artifacts: artifacts,
		summaries: summaries,
		prefix:    prefix,
		logger:    logger,
		now:       time.Now,
	}
}

// Enabled reports whether anything would be published.
func (p *Publisher) Enabled() bool {
	return p != nil && (p.store != nil || p.summaries != nil)
}

// Publish uploads files under <prefix>/<community>/<run id>/ and saves the
// summary. Failures are collected and returned together; a failed upload
// does not stop the remaining ones.
func (p *Publisher) Publish(ctx context.Context, runID, community string, files []File, res *models.CommunityAnalysisResult) ([]models.Artifact, error) {
	if !p.Enabled() {
		return nil, nil
	}
	logger := p.logger.WithRun(runID).WithCommunity(community)

	var (
		published []models.Artifact
		errs      []error
	)
	if p.store != nil {
		for _, f := range files {
			if _, err := os.Stat(f.Path); err != nil {
				continue
			}
			key := ObjectKey(p.prefix, community, runID, string(f.Type), filepath.Base(f.Path))
			uri, err := p.store.Put(ctx, key, f.Path)
			if err != nil {
				errs = append(errs, err)
				logger.Warn("artifact upload failed", "path", f.Path, "error", err.Error())
				continue
			}

			artifact := models.Artifact{
				RunID:     runID,
				Community: community,
				Type:      f.Type,
				URI:       uri,
				CreatedAt: p.now(),
				Meta:      map[string]interface{}{"file": filepath.Base(f.Path)},
			}
			if p.artifacts != nil {
				if err := p.artifacts.CreateArtifact(ctx, artifact); err != nil {
					errs = append(errs, fmt.Errorf("record artifact %s: %w", uri, err))
				}
			}
			published = append(published, artifact)
		}
	}

	if p.summaries != nil && res != nil {
		if err := p.summaries.SaveSummary(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("published run artifacts", "count", len(published), "errors", len(errs))
	return published, errors.Join(errs...)
}
