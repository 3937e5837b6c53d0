package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classroll/records-api/internal/core/domain"
)

const collectionAuditEvents = "audit_events"

// AuditRepository appends security events to the audit_events collection.
type AuditRepository struct {
	col *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(collectionAuditEvents)}
}

// InsertAuditEvent persists event keyed by its id, so a replayed event is
// rejected as a duplicate rather than stored twice.
func (r *AuditRepository) InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"_id":         event.ID,
		"kind":        string(event.Kind),
		"actor_id":    event.ActorID,
		"target_id":   event.TargetID,
		"username":    event.Username,
		"occurred_at": event.OccurredAt.UTC(),
	}
	if len(event.Details) > 0 {
		doc["details"] = event.Details
	}

	_, err := r.col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}
