package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"msgport/internal/model"
)

// FilesystemExporter writes delivery-log packs as JSON artifacts under a
// base directory, one file per export job.
type FilesystemExporter struct {
	baseDir string
}

func NewFilesystemExporter(baseDir string) *FilesystemExporter {
	return &FilesystemExporter{baseDir: baseDir}
}

func (f *FilesystemExporter) CreateDeliveryLog(_ context.Context, jobID string, deliveries []model.Delivery) (string, error) {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(f.baseDir, fmt.Sprintf("%s.json", jobID))
	deliveries = sortedDeliveries(deliveries)
	itemsJSON, err := json.Marshal(deliveries)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(itemsJSON)
	payload := struct {
		SchemaVersion  string           `json:"schema_version"`
		GeneratedAt    time.Time        `json:"generated_at"`
		Count          int              `json:"count"`
		ChecksumSHA256 string           `json:"checksum_sha256"`
		Items          []model.Delivery `json:"items"`
	}{
		SchemaVersion:  "delivery-log/v1",
		GeneratedAt:    time.Now().UTC(),
		Count:          len(deliveries),
		ChecksumSHA256: hex.EncodeToString(sum[:]),
		Items:          deliveries,
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ArtifactPath validates a stored artifact URI and resolves it inside
// the export directory, refusing path traversal.
func (f *FilesystemExporter) ArtifactPath(artifactURI string) (string, error) {
	artifactURI = strings.TrimSpace(artifactURI)
	if artifactURI == "" {
		return "", fmt.Errorf("empty artifact uri")
	}
	cleaned := filepath.Clean(artifactURI)
	base, err := filepath.Abs(f.baseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact outside export dir")
	}
	return abs, nil
}

func sortedDeliveries(items []model.Delivery) []model.Delivery {
	out := make([]model.Delivery, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out
}
