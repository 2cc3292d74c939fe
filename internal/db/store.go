package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/bohania/reception-desk/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const searchLimit = 20

// RecordStore is the narrow persistence contract the intake core depends on.
type RecordStore interface {
	FindVehiclesMatching(ctx context.Context, query string) ([]models.MatchCandidate, error)
	GetStoredContact(ctx context.Context, vehicleID string) (*models.ContactRecord, error)
	VehicleIdentifierExists(ctx context.Context, kind models.IdentifierKind, value string) (bool, error)
	CreateReceptionEntry(ctx context.Context, entry *models.ReceptionEntry) (string, error)
	UpdateVehicleIdentity(ctx context.Context, vehicleID string, patch models.VehicleIdentityPatch) error
	ListReceptionEntries(ctx context.Context, filter models.EntryFilter) ([]models.ReceptionEntry, error)
	GetReceptionEntry(ctx context.Context, entryID string) (*models.ReceptionEntry, error)
	InsertArrival(ctx context.Context, arrival models.Arrival) error
	ListArrivals(ctx context.Context) ([]models.Arrival, error)
}

// ConnectMongo connects to MongoDB using the MONGO_URI environment variable.
func ConnectMongo() (*mongo.Client, error) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// MongoStore implements RecordStore on top of MongoDB collections.
type MongoStore struct {
	Vehicles *mongo.Collection
	Contacts *mongo.Collection
	Entries  *mongo.Collection
	Arrivals *mongo.Collection
}

// NewMongoStore wires the store's collections from a database handle.
func NewMongoStore(database *mongo.Database) *MongoStore {
	return &MongoStore{
		Vehicles: database.Collection("vehicles"),
		Contacts: database.Collection("contacts"),
		Entries:  database.Collection("reception_entries"),
		Arrivals: database.Collection("arrivals"),
	}
}

// FindVehiclesMatching returns unranked candidates whose reg no, VIN or
// customer phone contains the normalized query. Ranking happens in the intake
// core.
func (s *MongoStore) FindVehiclesMatching(ctx context.Context, query string) ([]models.MatchCandidate, error) {
	if s.Vehicles == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	or := []bson.M{
		{"vehicle_reg_no": pattern},
		{"vin": pattern},
	}
	// Phone matching is digit-sequence based; formatting stored with the
	// number must not hide it from a digit query.
	if digits := digitsOnly(query); digits != "" {
		or = append(or, bson.M{"customer_phone_digits": primitive.Regex{Pattern: digits}})
	}
	filter := bson.M{"$or": or}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_intake_at", Value: -1}}).
		SetLimit(searchLimit)
	cursor, err := s.Vehicles.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vehicles []models.VehicleIdentity
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}
	candidates := make([]models.MatchCandidate, 0, len(vehicles))
	for i := range vehicles {
		candidates = append(candidates, vehicles[i].Candidate())
	}
	return candidates, nil
}

// GetStoredContact fetches the contact snapshot owned by the vehicle's most
// recent intake.
func (s *MongoStore) GetStoredContact(ctx context.Context, vehicleID string) (*models.ContactRecord, error) {
	if s.Contacts == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var stored models.StoredContact
	err := s.Contacts.FindOne(ctx, bson.M{"vehicle_id": vehicleID}).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	record := stored.ContactRecord
	return &record, nil
}

// VehicleIdentifierExists reports whether any stored vehicle carries the
// given identifier. Exact match only; the caller normalizes the value.
func (s *MongoStore) VehicleIdentifierExists(ctx context.Context, kind models.IdentifierKind, value string) (bool, error) {
	if s.Vehicles == nil {
		return false, fmt.Errorf("mongo collection is nil")
	}
	field := "vehicle_reg_no"
	if kind == models.IdentifierVIN {
		field = "vin"
	}
	count, err := s.Vehicles.CountDocuments(ctx, bson.M{field: value})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateReceptionEntry persists a finalized entry. It also upserts the
// vehicle identity document and supersedes the stored contact snapshot, so
// the most recent intake always owns the contact record.
func (s *MongoStore) CreateReceptionEntry(ctx context.Context, entry *models.ReceptionEntry) (string, error) {
	if s.Entries == nil || s.Vehicles == nil || s.Contacts == nil {
		return "", fmt.Errorf("mongo collection is nil")
	}
	now := time.Now()
	if entry.EntryID == "" {
		entry.EntryID = primitive.NewObjectID().Hex()
	}

	vehicleOID := primitive.NewObjectID()
	if entry.VehicleID != "" {
		oid, err := primitive.ObjectIDFromHex(entry.VehicleID)
		if err != nil {
			return "", fmt.Errorf("invalid vehicle ID: %w", err)
		}
		vehicleOID = oid
	} else {
		entry.VehicleID = vehicleOID.Hex()
	}

	vehicleUpdate := bson.M{
		"$set": bson.M{
			"vehicle_reg_no":        entry.RegNo,
			"vin":                   entry.VIN,
			"engine_no":             entry.EngineNo,
			"customer_name":         entry.CustomerName,
			"customer_phone":        entry.Contact.ContactNo,
			"customer_phone_digits": digitsOnly(entry.Contact.ContactNo),
			"customer_email":        entry.Contact.Email,
			"last_intake_at":        entry.EntryTime,
			"updated_at":            now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	upsert := options.Update().SetUpsert(true)
	if _, err := s.Vehicles.UpdateOne(ctx, bson.M{"_id": vehicleOID}, vehicleUpdate, upsert); err != nil {
		return "", err
	}

	stored := models.StoredContact{
		VehicleID:     entry.VehicleID,
		ContactRecord: entry.Contact,
		UpdatedAt:     now,
	}
	if _, err := s.Contacts.ReplaceOne(ctx, bson.M{"vehicle_id": entry.VehicleID}, stored, options.Replace().SetUpsert(true)); err != nil {
		return "", err
	}

	if _, err := s.Entries.InsertOne(ctx, entry); err != nil {
		return "", err
	}
	return entry.EntryID, nil
}

// UpdateVehicleIdentity backfills previously-missing identifiers.
// Last-write-wins.
func (s *MongoStore) UpdateVehicleIdentity(ctx context.Context, vehicleID string, patch models.VehicleIdentityPatch) error {
	if s.Vehicles == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	oid, err := primitive.ObjectIDFromHex(vehicleID)
	if err != nil {
		return fmt.Errorf("invalid vehicle ID: %w", err)
	}
	set := bson.M{"updated_at": time.Now()}
	if patch.RegNo != nil {
		set["vehicle_reg_no"] = *patch.RegNo
	}
	if patch.VIN != nil {
		set["vin"] = *patch.VIN
	}
	result, err := s.Vehicles.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReceptionEntries returns register entries for the given filters, newest
// entry first.
func (s *MongoStore) ListReceptionEntries(ctx context.Context, filter models.EntryFilter) ([]models.ReceptionEntry, error) {
	if s.Entries == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	query := bson.M{}
	if filter.Branch != "" {
		query["branch"] = filter.Branch
	}
	if filter.Source != "" {
		query["source"] = filter.Source
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if from, to, ok := dateWindow(filter, time.Now()); ok {
		query["vehicle_reception_time"] = bson.M{"$gte": from, "$lt": to}
	}
	opts := options.Find().SetSort(bson.D{{Key: "entry_time", Value: -1}})
	cursor, err := s.Entries.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []models.ReceptionEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetReceptionEntry fetches one entry by its id.
func (s *MongoStore) GetReceptionEntry(ctx context.Context, entryID string) (*models.ReceptionEntry, error) {
	if s.Entries == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var entry models.ReceptionEntry
	err := s.Entries.FindOne(ctx, bson.M{"entry_id": entryID}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// InsertArrival queues a drop-off announcement for the front desk.
func (s *MongoStore) InsertArrival(ctx context.Context, arrival models.Arrival) error {
	if s.Arrivals == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := s.Arrivals.InsertOne(ctx, arrival)
	return err
}

// ListArrivals returns unhandled arrivals, newest first.
func (s *MongoStore) ListArrivals(ctx context.Context) ([]models.Arrival, error) {
	if s.Arrivals == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	cursor, err := s.Arrivals.Find(ctx, bson.M{"handled": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var arrivals []models.Arrival
	if err := cursor.All(ctx, &arrivals); err != nil {
		return nil, err
	}
	return arrivals, nil
}

// digitsOnly keeps the digit sequence of a phone number.
func digitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dateWindow translates a register date filter into a half-open time range.
func dateWindow(filter models.EntryFilter, now time.Time) (time.Time, time.Time, bool) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch filter.DateFilter {
	case models.DateToday:
		return startOfDay, startOfDay.AddDate(0, 0, 1), true
	case models.DateYesterday:
		return startOfDay.AddDate(0, 0, -1), startOfDay, true
	case models.DateThisWeek:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // weeks start on Monday
		}
		startOfWeek := startOfDay.AddDate(0, 0, -(weekday - 1))
		return startOfWeek, startOfWeek.AddDate(0, 0, 7), true
	case models.DateCustom:
		if filter.From.IsZero() && filter.To.IsZero() {
			return time.Time{}, time.Time{}, false
		}
		from := filter.From
		to := filter.To
		if to.IsZero() {
			to = now.AddDate(0, 0, 1)
		} else {
			to = to.AddDate(0, 0, 1) // inclusive end date
		}
		return from, to, true
	default:
		return time.Time{}, time.Time{}, false
	}
}
