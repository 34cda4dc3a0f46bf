package messenger

import "msgport/internal/model"

type Adapter struct {
	Parser Parser
}

func NewAdapter() Adapter { return Adapter{Parser: Parser{}} }

func (Adapter) Platform() model.Platform { return model.PlatformMessenger }

// ObjectKinds covers both page and instagram subscriptions; the payload
// envelope is the same messaging shape for both.
func (Adapter) ObjectKinds() []string { return []string{"page", "instagram"} }

func (a Adapter) Parse(body []byte) ([]model.InboundEvent, error) {
	return a.Parser.Parse(body)
}
