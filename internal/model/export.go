package model

import "time"

type ExportJob struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Format      string                 `json:"format"`
	Filter      map[string]interface{} `json:"filter"`
	ArtifactURI string                 `json:"artifact_uri,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
