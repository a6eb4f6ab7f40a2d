package llm

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Authenticator decorates an outgoing request with credentials.
type Authenticator interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// Bearer authorizes requests with a static API key.
type Bearer struct {
	Key string
	Log logrus.FieldLogger // optional
}

// NewBearer returns a Bearer authenticator for key.
func NewBearer(key string) *Bearer {
	return &Bearer{Key: key}
}

// Authorize sets the Authorization header, replacing any existing value.
func (b *Bearer) Authorize(_ context.Context, req *http.Request) error {
	if prev := req.Header.Get("Authorization"); prev != "" {
		log := b.Log
		if log == nil {
			log = logrus.StandardLogger()
		}
		log.WithField("url", req.URL.String()).Warn("auth header exists and is overwritten")
	}
	req.Header.Set("Authorization", "Bearer "+b.Key)
	return nil
}
