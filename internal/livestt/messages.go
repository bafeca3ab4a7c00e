package livestt

import "encoding/json"

// Client-side subset of the BidiGenerateContent protocol. Only the
// messages this service sends or reads are modeled; everything else in a
// server frame is ignored.

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                   string           `json:"model"`
	GenerationConfig        generationConfig `json:"generationConfig"`
	InputAudioTranscription struct{}         `json:"inputAudioTranscription"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded s16le PCM
}

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *serverError     `json:"error,omitempty"`
}

type serverContent struct {
	TurnComplete       bool           `json:"turnComplete,omitempty"`
	InputTranscription *transcription `json:"inputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
