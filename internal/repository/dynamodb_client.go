package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"kennel-assistant/internal/domain"
)

const (
	skMeta          = "META#"
	skPrefixKeyword = "KW#"
	leadTTL         = 90 * 24 * time.Hour // 90-day TTL
	noKeyword       = "-"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client stores leads and keyword lookup counters in a single table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func leadPK(leadID string) string {
	return "LEAD#" + leadID
}

func lookupPK(outcome string) string {
	return "LOOKUP#" + outcome
}

func keywordSK(keyword string) string {
	if keyword == "" {
		keyword = noKeyword
	}
	return skPrefixKeyword + keyword
}

// NewLeadRecord builds a pending record for a lead about to be relayed.
func NewLeadRecord(leadID string, lead domain.Lead, now time.Time) domain.LeadRecord {
	ts := now.UTC().Format(time.RFC3339)
	return domain.LeadRecord{
		PK:        leadPK(leadID),
		SK:        skMeta,
		LeadID:    leadID,
		Lead:      lead,
		Status:    domain.LeadStatusPending,
		CreatedAt: ts,
		UpdatedAt: ts,
		TTL:       now.Add(leadTTL).Unix(),
	}
}

// SaveLead persists a new lead record. Existing records are never overwritten.
func (c *Client) SaveLead(ctx context.Context, rec domain.LeadRecord) error {
	if rec.PK == "" || rec.SK == "" {
		return errors.New("repository: SaveLead: PK and SK are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                leadItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveLead: %w", err)
	}
	return nil
}

// CreateLead stores a pending record for a lead about to be relayed.
func (c *Client) CreateLead(ctx context.Context, leadID string, lead domain.Lead) error {
	if strings.TrimSpace(leadID) == "" {
		return errors.New("repository: CreateLead: lead id is required")
	}
	return c.SaveLead(ctx, NewLeadRecord(leadID, lead, c.now()))
}

// UpdateLeadStatus records the relay outcome for a lead.
func (c *Client) UpdateLeadStatus(ctx context.Context, leadID, status, detail string) error {
	if strings.TrimSpace(leadID) == "" {
		return errors.New("repository: UpdateLeadStatus: lead id is required")
	}
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: leadPK(leadID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:    aws.String("SET #status = :status, detail = :detail, updatedAt = :updatedAt"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":    &types.AttributeValueMemberS{Value: status},
			":detail":    &types.AttributeValueMemberS{Value: detail},
			":updatedAt": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateLeadStatus: %w", err)
	}
	return nil
}

// RecordLookup increments the counter for keyword under outcome. Fallback
// lookups have no keyword and share one counter.
func (c *Client) RecordLookup(ctx context.Context, outcome, keyword string) error {
	if outcome != domain.OutcomeResolved && outcome != domain.OutcomeFallback {
		return fmt.Errorf("repository: RecordLookup: unknown outcome %q", outcome)
	}
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lookupPK(outcome)},
			"SK": &types.AttributeValueMemberS{Value: keywordSK(keyword)},
		},
		UpdateExpression: aws.String("ADD #count :one SET lastSeenAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordLookup: %w", err)
	}
	return nil
}

// LookupStats lists the counters recorded under outcome, ordered by keyword.
func (c *Client) LookupStats(ctx context.Context, outcome string) ([]domain.KeywordLookup, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: lookupPK(outcome)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixKeyword},
		},
	}

	var out []domain.KeywordLookup
	for {
		page, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: LookupStats query: %w", err)
		}
		for _, item := range page.Items {
			l, err := itemToLookup(item, outcome)
			if err != nil {
				return nil, fmt.Errorf("repository: LookupStats unmarshal: %w", err)
			}
			out = append(out, l)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func leadItem(rec domain.LeadRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: rec.PK},
		"SK":        &types.AttributeValueMemberS{Value: rec.SK},
		"leadId":    &types.AttributeValueMemberS{Value: rec.LeadID},
		"name":      &types.AttributeValueMemberS{Value: rec.Lead.Name},
		"phone":     &types.AttributeValueMemberS{Value: rec.Lead.Phone},
		"puppy":     &types.AttributeValueMemberS{Value: rec.Lead.Puppy},
		"message":   &types.AttributeValueMemberS{Value: rec.Lead.Message},
		"status":    &types.AttributeValueMemberS{Value: rec.Status},
		"detail":    &types.AttributeValueMemberS{Value: rec.Detail},
		"createdAt": &types.AttributeValueMemberS{Value: rec.CreatedAt},
		"updatedAt": &types.AttributeValueMemberS{Value: rec.UpdatedAt},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)},
	}
}

func itemToLookup(item map[string]types.AttributeValue, outcome string) (domain.KeywordLookup, error) {
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.KeywordLookup{}, err
	}
	count, err := intAttr(item, "count")
	if err != nil {
		return domain.KeywordLookup{}, err
	}
	lastSeen, _ := strAttr(item, "lastSeenAt") // allow empty

	keyword := strings.TrimPrefix(sk, skPrefixKeyword)
	if keyword == noKeyword {
		keyword = ""
	}
	return domain.KeywordLookup{
		Keyword:    keyword,
		Outcome:    outcome,
		Count:      count,
		LastSeenAt: lastSeen,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
