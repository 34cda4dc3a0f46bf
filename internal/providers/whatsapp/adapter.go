package whatsapp

import "msgport/internal/model"

const objectKind = "whatsapp_business_account"

type Adapter struct {
	Parser Parser
}

func NewAdapter() Adapter { return Adapter{Parser: Parser{}} }

func (Adapter) Platform() model.Platform { return model.PlatformWhatsApp }
func (Adapter) ObjectKinds() []string    { return []string{objectKind} }

func (a Adapter) Parse(body []byte) ([]model.InboundEvent, error) {
	return a.Parser.Parse(body)
}
