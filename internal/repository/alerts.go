package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"radiocare-agent/internal/domain"
)

// Create persists a doctor-facing alert under the user's partition so a
// user's alerts can be listed with one query.
func (c *Client) Create(ctx context.Context, alert domain.Alert) error {
	if alert.ID == "" {
		return errors.New("repository: Create alert: ID is required")
	}
	if alert.UserID == "" {
		return errors.New("repository: Create alert: UserID is required")
	}
	ts := alert.Date
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: userPK(alert.UserID)},
			"SK":       &types.AttributeValueMemberS{Value: skPrefixAlert + ts.UTC().Format(turnKeyLayout) + "#" + alert.ID},
			"alertId":  &types.AttributeValueMemberS{Value: alert.ID},
			"severity": &types.AttributeValueMemberS{Value: string(alert.Severity)},
			"message":  &types.AttributeValueMemberS{Value: alert.Message},
			"date":     &types.AttributeValueMemberS{Value: ts.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Create alert: %w", err)
	}
	return nil
}
