// Package model speaks the wire protocol of the bidirectional speech model:
// JSON envelopes whose single top-level key under "event" names the event kind.
package model

import "encoding/json"

// Content types used by contentStart/contentEnd.
const (
	ContentTypeText  = "TEXT"
	ContentTypeAudio = "AUDIO"
	ContentTypeTool  = "TOOL"
)

// Stop reason reported when the model finishes speaking a turn.
const StopReasonEndTurn = "END_TURN"

// GenerationStageFinal marks content the model commits to speaking, as opposed
// to speculative partial generations.
const GenerationStageFinal = "FINAL"

type InferenceConfiguration struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

type TextConfiguration struct {
	MediaType string `json:"mediaType"`
}

type AudioOutputConfiguration struct {
	AudioType       string `json:"audioType"`
	Encoding        string `json:"encoding"`
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	VoiceID         string `json:"voiceId"`
}

type AudioInputConfiguration struct {
	AudioType       string `json:"audioType"`
	Encoding        string `json:"encoding"`
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
}

type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		JSON string `json:"json"`
	} `json:"inputSchema"`
}

type ToolEntry struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

type ToolConfiguration struct {
	Tools []ToolEntry `json:"tools"`
}

type ToolResultInputConfiguration struct {
	ToolUseID         string            `json:"toolUseId"`
	Type              string            `json:"type"`
	TextConfiguration TextConfiguration `json:"textInputConfiguration"`
}

type SessionStartEvent struct {
	InferenceConfiguration InferenceConfiguration `json:"inferenceConfiguration"`
}

type PromptStartEvent struct {
	PromptName               string                   `json:"promptName"`
	TextOutputConfiguration  TextConfiguration        `json:"textOutputConfiguration"`
	AudioOutputConfiguration AudioOutputConfiguration `json:"audioOutputConfiguration"`
	ToolUseOutputConfig      *TextConfiguration       `json:"toolUseOutputConfiguration,omitempty"`
	ToolConfiguration        *ToolConfiguration       `json:"toolConfiguration,omitempty"`
}

type ContentStartEvent struct {
	PromptName              string                        `json:"promptName"`
	ContentName             string                        `json:"contentName"`
	Type                    string                        `json:"type"`
	Interactive             bool                          `json:"interactive"`
	Role                    string                        `json:"role,omitempty"`
	TextInputConfiguration  *TextConfiguration            `json:"textInputConfiguration,omitempty"`
	AudioInputConfiguration *AudioInputConfiguration      `json:"audioInputConfiguration,omitempty"`
	ToolResultInputConfig   *ToolResultInputConfiguration `json:"toolResultInputConfiguration,omitempty"`
}

type TextInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
	Role        string `json:"role,omitempty"`
}

type AudioInputEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

type ToolResultEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
	Content     string `json:"content"`
}

type ContentEndEvent struct {
	PromptName  string `json:"promptName"`
	ContentName string `json:"contentName"`
}

type PromptEndEvent struct {
	PromptName string `json:"promptName"`
}

type SessionEndEvent struct{}

// InputEvent is the discriminated union of outbound protocol events. Exactly
// one member is non-nil.
type InputEvent struct {
	SessionStart *SessionStartEvent `json:"sessionStart,omitempty"`
	PromptStart  *PromptStartEvent  `json:"promptStart,omitempty"`
	ContentStart *ContentStartEvent `json:"contentStart,omitempty"`
	TextInput    *TextInputEvent    `json:"textInput,omitempty"`
	AudioInput   *AudioInputEvent   `json:"audioInput,omitempty"`
	ToolResult   *ToolResultEvent   `json:"toolResult,omitempty"`
	ContentEnd   *ContentEndEvent   `json:"contentEnd,omitempty"`
	PromptEnd    *PromptEndEvent    `json:"promptEnd,omitempty"`
	SessionEnd   *SessionEndEvent   `json:"sessionEnd,omitempty"`
}

// Envelope is one outbound frame toward the model connection.
type Envelope struct {
	Event InputEvent `json:"event"`
}

// Name reports the event kind, for logging.
func (e Envelope) Name() string {
	switch {
	case e.Event.SessionStart != nil:
		return "sessionStart"
	case e.Event.PromptStart != nil:
		return "promptStart"
	case e.Event.ContentStart != nil:
		return "contentStart"
	case e.Event.TextInput != nil:
		return "textInput"
	case e.Event.AudioInput != nil:
		return "audioInput"
	case e.Event.ToolResult != nil:
		return "toolResult"
	case e.Event.ContentEnd != nil:
		return "contentEnd"
	case e.Event.PromptEnd != nil:
		return "promptEnd"
	case e.Event.SessionEnd != nil:
		return "sessionEnd"
	default:
		return "unknown"
	}
}

// IsAudioInput reports whether the envelope carries live audio (kept out of
// event logs, they are far too chatty).
func (e Envelope) IsAudioInput() bool { return e.Event.AudioInput != nil }

// IsSessionEnd reports whether this is the terminal outbound event.
func (e Envelope) IsSessionEnd() bool { return e.Event.SessionEnd != nil }

// Encode serializes the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Inbound response events.

type AudioOutput struct {
	PromptName string `json:"promptName"`
	ContentID  string `json:"contentId"`
	Content    string `json:"content"`
}

type TextOutput struct {
	PromptName string `json:"promptName"`
	ContentID  string `json:"contentId"`
	Role       string `json:"role"`
	Content    string `json:"content"`
}

type OutputContentStart struct {
	PromptName            string `json:"promptName"`
	ContentID             string `json:"contentId"`
	Type                  string `json:"type"`
	Role                  string `json:"role"`
	AdditionalModelFields string `json:"additionalModelFields,omitempty"`
}

type OutputContentEnd struct {
	PromptName string `json:"promptName"`
	ContentID  string `json:"contentId"`
	Type       string `json:"type"`
	StopReason string `json:"stopReason,omitempty"`
}

type ToolUse struct {
	PromptName string `json:"promptName"`
	ContentID  string `json:"contentId"`
	ToolUseID  string `json:"toolUseId"`
	ToolName   string `json:"toolName"`
	Content    string `json:"content"`
}

// OutputEvent is the discriminated union of inbound response events. Kinds not
// modeled here (completion/usage bookkeeping) leave every member nil and are
// only logged by the caller.
type OutputEvent struct {
	AudioOutput  *AudioOutput        `json:"audioOutput,omitempty"`
	TextOutput   *TextOutput         `json:"textOutput,omitempty"`
	ContentStart *OutputContentStart `json:"contentStart,omitempty"`
	ContentEnd   *OutputContentEnd   `json:"contentEnd,omitempty"`
	ToolUse      *ToolUse            `json:"toolUse,omitempty"`
}

// OutputEnvelope is one decoded inbound frame.
type OutputEnvelope struct {
	Event OutputEvent `json:"event"`
}

// DecodeOutput parses one inbound chunk.
func DecodeOutput(data []byte) (OutputEnvelope, error) {
	var env OutputEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return OutputEnvelope{}, err
	}
	return env, nil
}

// GenerationStage extracts the out-of-band generation stage field carried as a
// JSON string inside contentStart.
func (c *OutputContentStart) GenerationStage() string {
	if c == nil || c.AdditionalModelFields == "" {
		return ""
	}
	var fields struct {
		GenerationStage string `json:"generationStage"`
	}
	if err := json.Unmarshal([]byte(c.AdditionalModelFields), &fields); err != nil {
		return ""
	}
	return fields.GenerationStage
}
