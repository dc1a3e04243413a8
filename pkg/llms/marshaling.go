package llms

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// JSON models following OpenAI schema

// messageJSON is the compact form used when a message has a single
// text part.
type messageJSON struct {
	Role Role   `json:"role"`
	Text string `json:"text,omitempty"`
}

// messageWithPartsJSON is the general form with polymorphic parts.
type messageWithPartsJSON struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// contentPartJSON represents the JSON structure for content parts.
type contentPartJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *toolCallJSON     `json:"tool_call,omitempty"`
	ToolResponse *toolResponseJSON `json:"tool_response,omitempty"`
}

type toolCallJSON struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function"`
}

type toolResponseJSON struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// MarshalJSON implements json.Marshaler for Message.
func (m Message) MarshalJSON() ([]byte, error) {
	// Special case: single text part can be simplified
	if len(m.Parts) == 1 {
		if tp, ok := m.Parts[0].(TextContent); ok {
			return json.Marshal(messageJSON{
				Role: m.Role,
				Text: tp.Text,
			})
		}
	}
	return json.Marshal(messageWithPartsJSON{
		Role:  m.Role,
		Parts: m.Parts,
	})
}

// UnmarshalJSON implements json.Unmarshaler for Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var msgJSON messageJSON
	if err := json.Unmarshal(data, &msgJSON); err != nil {
		return errors.WithStack(err)
	}
	m.Role = msgJSON.Role

	if msgJSON.Text != "" {
		m.Parts = []ContentPart{TextContent{Text: msgJSON.Text}}
		return nil
	}

	// Parts are polymorphic and need manual decoding.
	var raw struct {
		Parts []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}
	for _, partData := range raw.Parts {
		var partJSON contentPartJSON
		if err := json.Unmarshal(partData, &partJSON); err != nil {
			return errors.WithStack(err)
		}
		part, err := unmarshalContentPart(partJSON)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func unmarshalContentPart(partJSON contentPartJSON) (ContentPart, error) {
	switch partJSON.Type {
	case "text", "":
		return TextContent{Text: partJSON.Text}, nil
	case "tool_call":
		if partJSON.ToolCall == nil {
			return nil, errors.New("tool_call field is required for tool_call type")
		}
		return ToolCall{
			ID:           partJSON.ToolCall.ID,
			Type:         partJSON.ToolCall.Type,
			FunctionCall: partJSON.ToolCall.FunctionCall,
		}, nil
	case "tool_response":
		if partJSON.ToolResponse == nil {
			return nil, errors.New("tool_response field is required for tool_response type")
		}
		return ToolCallResponse{
			ToolCallID: partJSON.ToolResponse.ToolCallID,
			Name:       partJSON.ToolResponse.Name,
			Content:    partJSON.ToolResponse.Content,
		}, nil
	default:
		return nil, errors.Newf("unknown content type: '%s'", partJSON.Type)
	}
}

// MarshalJSON implements json.Marshaler for TextContent.
func (tc TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{
		Type: "text",
		Text: tc.Text,
	})
}

// MarshalJSON implements json.Marshaler for ToolCall.
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string       `json:"type"`
		ToolCall toolCallJSON `json:"tool_call"`
	}{
		Type: "tool_call",
		ToolCall: toolCallJSON{
			ID:           tc.ID,
			Type:         tc.Type,
			FunctionCall: tc.FunctionCall,
		},
	})
}

// MarshalJSON implements json.Marshaler for ToolCallResponse.
func (tc ToolCallResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string           `json:"type"`
		ToolResponse toolResponseJSON `json:"tool_response"`
	}{
		Type: "tool_response",
		ToolResponse: toolResponseJSON{
			ToolCallID: tc.ToolCallID,
			Name:       tc.Name,
			Content:    tc.Content,
		},
	})
}
