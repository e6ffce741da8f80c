// Package github provides a github webhook event receiver.
package github

import (
	"encoding/json"
	"net/http"

	"github.com/google/go-github/v43/github"
	"go.uber.org/zap"

	"github.com/simplesurance/tapmerge/internal/logfields"
)

const loggerName = "github-event-provider"

// Provider listens for github-webhook http-requests at a http-server handler,
// validates and converts the requests to Events and forwards them to the
// registered event channels.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	chans         []chan<- *Event
}

type Option func(*Provider)

// WithPayloadSecret enables validating the webhook payload signature with
// secret.
func WithPayloadSecret(secret string) Option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(eventChans []chan<- *Event, opts ...Option) *Provider {
	p := Provider{
		chans: eventChans,
	}

	for _, opt := range opts {
		opt(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logFields := []zap.Field{
		logfields.EventProvider("github"),
		zap.String("github.delivery_id", deliveryID),
		zap.String("github.webhook_type", hookType),
	}

	logger := p.logger.With(logFields...)

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		logger.Error(
			"could not marshal event into json",
			logfields.Event("github_json_event_marshalling_failed"),
			zap.Error(err),
		)
	}

	ev := Event{
		DeliveryID: deliveryID,
		Type:       hookType,
		JSON:       eventJSON,
		Event:      event,
		LogFields:  logFields,
	}

	for _, ch := range p.chans {
		select {
		case ch <- &ev:

		default:
			logger.Warn(
				"event channel is full, event dropped",
				logfields.Event("github_event_dropped"),
			)
		}
	}

	resp.WriteHeader(http.StatusOK)
}
