package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"restaurant-agent/internal/domain"
)

const (
	kindReservation = "reservation"
	kindDialog      = "dialog"

	skPrefixState = "STATE#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by StateStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// StateStore keeps per-conversation state in a DynamoDB table. Writes are
// staged in memory and committed by Flush in a single transaction, so the
// reservation record and the dialog record can never land independently.
type StateStore struct {
	api       dynamodbAPI
	tableName string

	mu      sync.Mutex
	pending map[stateKey][]byte
}

type stateKey struct {
	conversationID string
	kind           string
}

// New creates a StateStore backed by the given DynamoDB API and table.
func New(api dynamodbAPI, tableName string) (*StateStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &StateStore{
		api:       api,
		tableName: tableName,
		pending:   map[stateKey][]byte{},
	}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// stateSK returns the sort key for a state kind.
func stateSK(kind string) string {
	return skPrefixState + kind
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// GetReservation loads the reservation record, returning the zero value when
// the conversation has none yet.
func (s *StateStore) GetReservation(ctx context.Context, conversationID string) (domain.ReservationState, error) {
	var state domain.ReservationState
	if err := s.get(ctx, conversationID, kindReservation, &state); err != nil {
		return domain.ReservationState{}, err
	}
	return state, nil
}

// SetReservation stages the reservation record for the next Flush.
func (s *StateStore) SetReservation(_ context.Context, conversationID string, state domain.ReservationState) error {
	return s.set(conversationID, kindReservation, state)
}

// GetDialog loads the dialog record; the zero value means no active dialog.
func (s *StateStore) GetDialog(ctx context.Context, conversationID string) (domain.DialogRecord, error) {
	var record domain.DialogRecord
	if err := s.get(ctx, conversationID, kindDialog, &record); err != nil {
		return domain.DialogRecord{}, err
	}
	return record, nil
}

// SetDialog stages the dialog record for the next Flush.
func (s *StateStore) SetDialog(_ context.Context, conversationID string, record domain.DialogRecord) error {
	return s.set(conversationID, kindDialog, record)
}

// get reads a state document, preferring a value staged earlier in the same
// turn over the durable one so a turn always observes its own writes.
func (s *StateStore) get(ctx context.Context, conversationID, kind string, out any) error {
	s.mu.Lock()
	staged, ok := s.pending[stateKey{conversationID, kind}]
	s.mu.Unlock()
	if ok {
		if err := json.Unmarshal(staged, out); err != nil {
			return fmt.Errorf("repository: decode staged %s state: %w", kind, err)
		}
		return nil
	}

	res, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: stateSK(kind)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("repository: get %s state: %w", kind, err)
	}
	if res == nil || len(res.Item) == 0 {
		// Absent state decodes to the caller's zero value.
		return nil
	}

	doc, err := strAttr(res.Item, "data")
	if err != nil {
		return fmt.Errorf("repository: get %s state: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("repository: decode %s state: %w", kind, err)
	}
	return nil
}

func (s *StateStore) set(conversationID, kind string, value any) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: conversation id must not be empty")
	}
	doc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("repository: encode %s state: %w", kind, err)
	}

	s.mu.Lock()
	s.pending[stateKey{conversationID, kind}] = doc
	s.mu.Unlock()
	return nil
}

// Flush commits every staged write in one TransactWriteItems call and clears
// the buffer on success. With nothing staged it is a no-op.
func (s *StateStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	staged := s.pending
	s.pending = map[stateKey][]byte{}
	s.mu.Unlock()

	if len(staged) == 0 {
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(staged))
	for key, doc := range staged {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tableName),
				Item:      stateItem(key, doc),
			},
		})
	}

	if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		// Restage so a retried turn does not silently lose the writes.
		s.mu.Lock()
		for key, doc := range staged {
			if _, exists := s.pending[key]; !exists {
				s.pending[key] = doc
			}
		}
		s.mu.Unlock()
		return fmt.Errorf("repository: flush state: %w", err)
	}
	return nil
}

func stateItem(key stateKey, doc []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(key.conversationID)},
		"SK":             &types.AttributeValueMemberS{Value: stateSK(key.kind)},
		"conversationId": &types.AttributeValueMemberS{Value: key.conversationID},
		"data":           &types.AttributeValueMemberS{Value: string(doc)},
		"updatedAt":      &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	str, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return str.Value, nil
}
