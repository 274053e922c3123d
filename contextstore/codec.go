package contextstore

import (
	"encoding/json"

	"github.com/coursebot/assistant/domain"
)

func encode(cc domain.ConversationContext) ([]byte, error) {
	return json.Marshal(cc)
}

func decode(data []byte) (domain.ConversationContext, error) {
	var cc domain.ConversationContext
	if err := json.Unmarshal(data, &cc); err != nil {
		return domain.ConversationContext{}, err
	}
	return cc, nil
}
