package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"msgport/internal/model"
)

// Registry maps the webhook body's top-level `object` value to the
// adapter for that platform. Registered once at startup, read-only after.
type Registry struct {
	byObject map[string]PlatformAdapter
}

func NewRegistry() *Registry {
	return &Registry{byObject: map[string]PlatformAdapter{}}
}

func (r *Registry) Register(adapter PlatformAdapter) {
	if r == nil || adapter == nil {
		return
	}
	if r.byObject == nil {
		r.byObject = map[string]PlatformAdapter{}
	}
	for _, kind := range adapter.ObjectKinds() {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind == "" {
			continue
		}
		r.byObject[kind] = adapter
	}
}

// Parse resolves the envelope kind and delegates to the matching adapter.
// An unrecognized object kind is not an error: it yields a single ignored
// event so callers can acknowledge and count it.
func (r *Registry) Parse(body []byte) ([]model.InboundEvent, error) {
	var envelope struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding webhook envelope: %w", err)
	}
	adapter, ok := r.byObject[strings.ToLower(strings.TrimSpace(envelope.Object))]
	if !ok {
		return []model.InboundEvent{model.Ignored(model.PlatformUnknown, "")}, nil
	}
	return adapter.Parse(body)
}

func (r *Registry) MustHaveAdapters() error {
	if r == nil || len(r.byObject) == 0 {
		return fmt.Errorf("empty platform registry")
	}
	return nil
}
