package services

import (
	"context"
	"encoding/json"
	"fmt"

	awspkg "github.com/RemoteKing-Interns/allremotes-sub000/pkg/aws"
	"github.com/RemoteKing-Interns/allremotes-sub000/models"
)

// EventCatalogImported is the type of the event sent after each upload.
const EventCatalogImported = "catalog.imported"

// EventPublisher announces finished uploads to downstream consumers.
type EventPublisher interface {
	PublishImported(ctx context.Context, ev models.CatalogImportedEvent) error
}

// SNSEventPublisher sends events to one SNS topic.
type SNSEventPublisher struct {
	sns      awspkg.SNSPublisher
	topicArn string
}

func NewSNSEventPublisher(sns awspkg.SNSPublisher, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{sns: sns, topicArn: topicArn}
}

func (p *SNSEventPublisher) PublishImported(ctx context.Context, ev models.CatalogImportedEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return p.sns.PublishEvent(ctx, p.topicArn, ev.Type, b)
}
