// Package publisher defines the notification sent for every stored document.
package publisher

import "context"

// Publisher pushes a JSON-serializable payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// DocumentStored is published after a payload lands in the store.
type DocumentStored struct {
	RunID    string `json:"run_id"`
	Target   string `json:"target"`
	Period   string `json:"period"`
	URL      string `json:"url"`
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
	SHA256   string `json:"sha256"`
}
