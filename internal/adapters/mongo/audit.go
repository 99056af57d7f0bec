package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-payments/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger keeps an append-only record of financial transitions. Orders
// are never deleted in Postgres either; this is the cross-store trail
// operators grep during reconciliation.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	Subject   uuid.UUID `bson:"subject"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

// LogAction records one event under the given id, which doubles as the
// dedupe key: redeliveries of the same broker message carry the same id and
// collide on _id, which is treated as already-recorded rather than an error.
// Callers without a stable id pass uuid.Nil and get a fresh one.
func (a *AuditLogger) LogAction(ctx context.Context, id uuid.UUID, action string, subject uuid.UUID, data map[string]interface{}) error {
	if id == uuid.Nil {
		id = uuid.New()
	}
	log := AuditLog{
		ID:        id,
		Action:    action,
		Subject:   subject,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}
