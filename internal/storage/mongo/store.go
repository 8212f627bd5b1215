// Package mongo provides a MongoDB-backed implementation of the
// storage.Store interface.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

// Collection name constants.
const (
	colSheets     = "sheets"
	colStructures = "structures"
)

// compile-time interface check
var _ storage.Store = (*Store)(nil)

type sheetModel struct {
	ID            string        `bson:"_id"`
	AssociationID string        `bson:"association_id"`
	Status        string        `bson:"status"`
	CreatedAt     time.Time     `bson:"created_at"`
	Sheet         *models.Sheet `bson:"sheet"`
}

type structureModel struct {
	ID            string            `bson:"_id"`
	AssociationID string            `bson:"association_id"`
	Version       int               `bson:"version"`
	Structure     *models.Structure `bson:"structure"`
}

// Store implements storage.Store on MongoDB. Transactions require a replica
// set or sharded cluster.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	inTx   bool
}

// New connects to uri, selects database and creates indexes.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("blocsheet/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("blocsheet/mongo: ping: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, idx := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("blocsheet/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.inTx {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// WithTx runs fn inside a session transaction. The driver may retry fn on
// transient transaction errors.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("blocsheet/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	tx := &Store{client: s.client, db: s.db, inTx: true}
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, tx)
	})
	return err
}

func (s *Store) CreateSheet(ctx context.Context, sheet *models.Sheet) error {
	if sheet.ID == "" {
		sheet.ID = uuid.New().String()
	}
	if sheet.CreatedAt.IsZero() {
		sheet.CreatedAt = time.Now().UTC()
	}
	if sheet.UpdatedAt.IsZero() {
		sheet.UpdatedAt = sheet.CreatedAt
	}

	_, err := s.db.Collection(colSheets).InsertOne(ctx, toSheetModel(sheet))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("blocsheet/mongo: create sheet %s: %w", sheet.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("blocsheet/mongo: create sheet: %w", err)
	}
	return nil
}

func (s *Store) GetSheet(ctx context.Context, sheetID string) (*models.Sheet, error) {
	var m sheetModel
	err := s.db.Collection(colSheets).FindOne(ctx, bson.M{"_id": sheetID}).Decode(&m)
	if err != nil {
		return nil, notFound(err, "sheet", sheetID)
	}
	return m.Sheet, nil
}

func (s *Store) GetSheetByStatus(ctx context.Context, associationID string, status models.SheetStatus) (*models.Sheet, error) {
	var m sheetModel
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	err := s.db.Collection(colSheets).FindOne(ctx,
		bson.M{"association_id": associationID, "status": string(status)}, opts,
	).Decode(&m)
	if err != nil {
		return nil, notFound(err, "sheet", associationID+"/"+string(status))
	}
	return m.Sheet, nil
}

func (s *Store) ListSheets(ctx context.Context, associationID string) ([]*models.Sheet, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(colSheets).Find(ctx, bson.M{"association_id": associationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("blocsheet/mongo: list sheets: %w", err)
	}

	var ms []sheetModel
	if err := cursor.All(ctx, &ms); err != nil {
		return nil, fmt.Errorf("blocsheet/mongo: decode sheets: %w", err)
	}

	sheets := make([]*models.Sheet, 0, len(ms))
	for _, m := range ms {
		sheets = append(sheets, m.Sheet)
	}
	return sheets, nil
}

func (s *Store) UpdateSheet(ctx context.Context, sheet *models.Sheet) error {
	res, err := s.db.Collection(colSheets).ReplaceOne(ctx, bson.M{"_id": sheet.ID}, toSheetModel(sheet))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("blocsheet/mongo: update sheet %s: %w", sheet.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("blocsheet/mongo: update sheet: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("sheet %s: %w", sheet.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) PutStructure(ctx context.Context, st *models.Structure) error {
	_, err := s.db.Collection(colStructures).InsertOne(ctx, structureModel{
		ID:            st.ID,
		AssociationID: st.AssociationID,
		Version:       st.Version,
		Structure:     st,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("blocsheet/mongo: structure %s already stored: %w", st.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("blocsheet/mongo: put structure: %w", err)
	}
	return nil
}

func (s *Store) GetStructure(ctx context.Context, structureID string) (*models.Structure, error) {
	var m structureModel
	err := s.db.Collection(colStructures).FindOne(ctx, bson.M{"_id": structureID}).Decode(&m)
	if err != nil {
		return nil, notFound(err, "structure", structureID)
	}
	return m.Structure, nil
}

func toSheetModel(sheet *models.Sheet) sheetModel {
	return sheetModel{
		ID:            sheet.ID,
		AssociationID: sheet.AssociationID,
		Status:        string(sheet.Status),
		CreatedAt:     sheet.CreatedAt,
		Sheet:         sheet,
	}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func notFound(err error, kind, id string) error {
	if isNoDocuments(err) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return fmt.Errorf("blocsheet/mongo: get %s: %w", kind, err)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSheets: {
			{
				Keys: bson.D{{Key: "association_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("one_in_progress_per_association").
					SetPartialFilterExpression(bson.M{"status": string(models.SheetStatusInProgress)}),
			},
			{Keys: bson.D{{Key: "association_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colStructures: {
			{Keys: bson.D{{Key: "association_id", Value: 1}, {Key: "version", Value: 1}}},
		},
	}
}
