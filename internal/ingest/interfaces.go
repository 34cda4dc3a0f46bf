package ingest

import "msgport/internal/model"

// PlatformAdapter turns one platform's webhook envelope into normalized
// inbound events. Parse is pure with respect to external state: it never
// performs I/O and never fails on shapes it does not understand; those
// come back as ignored events.
type PlatformAdapter interface {
	Platform() model.Platform
	// ObjectKinds lists the top-level `object` values this adapter accepts.
	ObjectKinds() []string
	Parse(body []byte) ([]model.InboundEvent, error)
}
