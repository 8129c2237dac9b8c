package memory

// AppendUtteranceRequest is the payload for one live transcript utterance
type AppendUtteranceRequest struct {
	Speaker     string `json:"speaker" validate:"required,oneof=self other"`
	Text        string `json:"text" validate:"required"`
	TimestampMS int64  `json:"timestamp_ms" validate:"gte=0"`
}

// QueryRequest is the payload for asking a question about a meeting
type QueryRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}
