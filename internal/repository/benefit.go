package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"radiocare-agent/internal/domain"
)

// Account reads a user's benefit account. A user with no stored account
// gets a fresh one with the default total coverage and the card question
// unanswered.
func (c *Client) Account(ctx context.Context, userID string) (domain.BenefitAccount, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skBenefit},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.BenefitAccount{}, fmt.Errorf("repository: Account get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewBenefitAccount(c.defaultCoverage), nil
	}
	acct, err := itemToBenefit(out.Item)
	if err != nil {
		return domain.BenefitAccount{}, fmt.Errorf("repository: Account unmarshal: %w", err)
	}
	return acct, nil
}

// SetCardPossession records the answer to the card-possession question,
// preserving the rest of the account. Last write wins.
func (c *Client) SetCardPossession(ctx context.Context, userID string, has bool) error {
	acct, err := c.Account(ctx, userID)
	if err != nil {
		return fmt.Errorf("repository: SetCardPossession: %w", err)
	}
	acct.HasCard = &has
	acct.LastUpdated = time.Now().UTC()
	if err := c.Save(ctx, userID, acct); err != nil {
		return fmt.Errorf("repository: SetCardPossession: %w", err)
	}
	return nil
}

// Save replaces the stored benefit account for the user.
func (c *Client) Save(ctx context.Context, userID string, acct domain.BenefitAccount) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      benefitItem(userID, acct),
	})
	if err != nil {
		return fmt.Errorf("repository: Save benefit account: %w", err)
	}
	return nil
}

func benefitItem(userID string, acct domain.BenefitAccount) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK":              &types.AttributeValueMemberS{Value: skBenefit},
		"totalCoverage":   &types.AttributeValueMemberN{Value: strconv.FormatInt(acct.TotalCoverage, 10)},
		"amountUsed":      &types.AttributeValueMemberN{Value: strconv.FormatInt(acct.AmountUsed, 10)},
		"amountRemaining": &types.AttributeValueMemberN{Value: strconv.FormatInt(acct.AmountRemaining, 10)},
		"lastUpdated":     &types.AttributeValueMemberS{Value: acct.LastUpdated.UTC().Format(time.RFC3339)},
	}
	// hasCard is written only once the question has been answered, keeping
	// the stored shape tri-state.
	if acct.HasCard != nil {
		item["hasCard"] = &types.AttributeValueMemberBOOL{Value: *acct.HasCard}
	}
	if len(acct.UsageHistory) > 0 {
		entries := make([]types.AttributeValue, 0, len(acct.UsageHistory))
		for _, e := range acct.UsageHistory {
			entries = append(entries, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"date":        &types.AttributeValueMemberS{Value: e.Date.UTC().Format(time.RFC3339)},
				"description": &types.AttributeValueMemberS{Value: e.Description},
				"amount":      &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Amount, 10)},
				"hospital":    &types.AttributeValueMemberS{Value: e.Hospital},
			}})
		}
		item["usageHistory"] = &types.AttributeValueMemberL{Value: entries}
	}
	return item
}

func itemToBenefit(item map[string]types.AttributeValue) (domain.BenefitAccount, error) {
	total, err := int64Attr(item, "totalCoverage")
	if err != nil {
		return domain.BenefitAccount{}, err
	}
	used, err := int64Attr(item, "amountUsed")
	if err != nil {
		return domain.BenefitAccount{}, err
	}
	remaining, err := int64Attr(item, "amountRemaining")
	if err != nil {
		return domain.BenefitAccount{}, err
	}
	acct := domain.BenefitAccount{
		TotalCoverage:   total,
		AmountUsed:      used,
		AmountRemaining: remaining,
	}
	if v, ok := item["hasCard"]; ok {
		if b, ok := v.(*types.AttributeValueMemberBOOL); ok {
			acct.HasCard = &b.Value
		}
	}
	if raw := optStrAttr(item, "lastUpdated"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			acct.LastUpdated = ts
		}
	}
	if v, ok := item["usageHistory"]; ok {
		if list, ok := v.(*types.AttributeValueMemberL); ok {
			for _, el := range list.Value {
				m, ok := el.(*types.AttributeValueMemberM)
				if !ok {
					continue
				}
				entry := domain.UsageEntry{
					Description: optStrAttr(m.Value, "description"),
					Hospital:    optStrAttr(m.Value, "hospital"),
				}
				if amount, err := int64Attr(m.Value, "amount"); err == nil {
					entry.Amount = amount
				}
				if raw := optStrAttr(m.Value, "date"); raw != "" {
					if ts, err := time.Parse(time.RFC3339, raw); err == nil {
						entry.Date = ts
					}
				}
				acct.UsageHistory = append(acct.UsageHistory, entry)
			}
		}
	}
	return acct, nil
}
