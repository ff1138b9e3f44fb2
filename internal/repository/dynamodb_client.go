// Package repository stores conversation records, benefit accounts and
// alerts in a single DynamoDB table keyed by user. Documents share the
// partition key USER#<id>; the sort key selects the turn, the follow-up
// marker, the benefit account, or an alert.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"radiocare-agent/internal/domain"
)

const (
	skPrefixTurn  = "TURN#"
	skState       = "STATE#"
	skBenefit     = "BENEFIT#"
	skPrefixAlert = "ALERT#"

	// Fixed-width timestamp so turn sort keys order lexicographically.
	turnKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps the DynamoDB table holding all per-user engine state.
type Client struct {
	api             dynamodbAPI
	tableName       string
	defaultCoverage int64
}

// New creates a repository Client. defaultCoverage seeds benefit accounts
// that have never been written.
func New(api dynamodbAPI, tableName string, defaultCoverage int64) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if defaultCoverage <= 0 {
		defaultCoverage = domain.DefaultCoverage
	}
	return &Client{api: api, tableName: tableName, defaultCoverage: defaultCoverage}, nil
}

func userPK(userID string) string {
	return "USER#" + userID
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(turnKeyLayout)
}

// AppendTurn persists one conversation turn. The conditional put guards
// against sort-key collisions; the per-user record itself is created
// implicitly on the first turn (upsert semantics).
func (c *Client) AppendTurn(ctx context.Context, userID string, turn domain.ConversationTurn) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: AppendTurn: userID is required")
	}
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(userID, ts, turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// History returns every turn for a user in chronological order.
func (c *Client) History(ctx context.Context, userID string) ([]domain.ConversationTurn, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: History query: %w", err)
	}
	turns := make([]domain.ConversationTurn, 0, len(out.Items))
	for _, item := range out.Items {
		t, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: History unmarshal: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Recent returns the last limit turns in chronological order. The query
// reads newest-first so the limit favors the most recent context.
func (c *Client) Recent(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Recent query: %w", err)
	}
	turns := make([]domain.ConversationTurn, 0, len(out.Items))
	for _, item := range out.Items {
		t, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Recent unmarshal: %w", err)
		}
		turns = append(turns, t)
	}
	// Reverse to chronological order before prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// FollowUpState reads the pending follow-up marker. A missing item means
// no record yet, which reads the same as an explicit "no pending state".
func (c *Client) FollowUpState(ctx context.Context, userID string) (domain.FollowUpState, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.FollowUpNone, fmt.Errorf("repository: FollowUpState get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.FollowUpNone, nil
	}
	raw, err := strAttr(out.Item, "followUp")
	if err != nil {
		return domain.FollowUpNone, fmt.Errorf("repository: FollowUpState decode: %w", err)
	}
	switch state := domain.FollowUpState(raw); state {
	case domain.FollowUpNone, domain.FollowUpAwaitingCard, domain.FollowUpAwaitingAmount:
		return state, nil
	default:
		return domain.FollowUpNone, fmt.Errorf("repository: FollowUpState: unknown state %q", raw)
	}
}

// SetFollowUpState writes the pending follow-up marker, replacing any
// previous value.
func (c *Client) SetFollowUpState(ctx context.Context, userID string, state domain.FollowUpState) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK":        &types.AttributeValueMemberS{Value: skState},
			"followUp":  &types.AttributeValueMemberS{Value: string(state)},
			"updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetFollowUpState: %w", err)
	}
	return nil
}

func turnItem(userID string, ts time.Time, turn domain.ConversationTurn) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK":           &types.AttributeValueMemberS{Value: turnSK(ts)},
		"user":         &types.AttributeValueMemberS{Value: turn.UserMessage},
		"bot":          &types.AttributeValueMemberS{Value: turn.BotReply},
		"timestamp":    &types.AttributeValueMemberS{Value: ts.UTC().Format(time.RFC3339Nano)},
		"severity":     &types.AttributeValueMemberS{Value: string(turn.Severity)},
		"processingMs": &types.AttributeValueMemberN{Value: strconv.FormatInt(turn.ProcessingMs, 10)},
	}
	if turn.ContextKey != "" {
		item["contextKey"] = &types.AttributeValueMemberS{Value: turn.ContextKey}
		item["contextName"] = &types.AttributeValueMemberS{Value: turn.ContextName}
	}
	return item
}

func itemToTurn(item map[string]types.AttributeValue) (domain.ConversationTurn, error) {
	user, err := strAttr(item, "user")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	bot, err := strAttr(item, "bot")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	severity, err := strAttr(item, "severity")
	if err != nil {
		return domain.ConversationTurn{}, err
	}
	turn := domain.ConversationTurn{
		UserMessage: user,
		BotReply:    bot,
		Severity:    domain.Severity(severity),
		ContextKey:  optStrAttr(item, "contextKey"),
		ContextName: optStrAttr(item, "contextName"),
	}
	if raw := optStrAttr(item, "timestamp"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			turn.Timestamp = ts
		}
	}
	if ms, err := int64Attr(item, "processingMs"); err == nil {
		turn.ProcessingMs = ms
	}
	return turn, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optStrAttr(item map[string]types.AttributeValue, key string) string {
	s, _ := strAttr(item, key)
	return s
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
