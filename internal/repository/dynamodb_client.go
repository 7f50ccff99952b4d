package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"museum-chatbot/internal/domain"
)

const (
	DefaultDateIndex     = "date-timestamp-index"
	DefaultFeedbackIndex = "feedback-timestamp-index"
)

// dynamodbAPI is the minimal DynamoDB interface required by the clients in
// this package. Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps the conversation history table. The table is keyed by
// conversationId + timestamp and carries two secondary indexes: one
// partitioned by calendar day, one by feedback value.
type Client struct {
	api           dynamodbAPI
	tableName     string
	dateIndex     string
	feedbackIndex string
}

type Option func(*Client)

func WithDateIndex(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.dateIndex = name
		}
	}
}

func WithFeedbackIndex(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.feedbackIndex = name
		}
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{
		api:           api,
		tableName:     tableName,
		dateIndex:     DefaultDateIndex,
		feedbackIndex: DefaultFeedbackIndex,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PutExchange writes a finished exchange. An exchange is created exactly once.
func (c *Client) PutExchange(ctx context.Context, ex domain.Exchange) error {
	if ex.ConversationID == "" || ex.Timestamp == "" {
		return errors.New("repository: PutExchange: conversationId and timestamp are required")
	}
	item, err := exchangeItem(ex)
	if err != nil {
		return fmt.Errorf("repository: PutExchange: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(conversationId)"),
	})
	if err != nil {
		return fmt.Errorf("repository: PutExchange: %w", err)
	}
	return nil
}

// GetExchange returns the exchange with the given id or domain.ErrNotFound.
func (c *Client) GetExchange(ctx context.Context, conversationID string) (domain.Exchange, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("conversationId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: conversationID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("repository: GetExchange query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return domain.Exchange{}, domain.ErrNotFound
	}
	ex := itemToExchange(out.Items[0])
	if ex.ConversationID == "" || ex.Timestamp == "" {
		return domain.Exchange{}, fmt.Errorf("repository: GetExchange: item is missing its key attributes")
	}
	return ex, nil
}

// CountByDay counts the exchanges of one calendar day through the date index.
// Every page is read; the page counts are summed.
func (c *Client) CountByDay(ctx context.Context, day string) (int, error) {
	p := dynamodb.NewQueryPaginator(c.api, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.dateIndex),
		KeyConditionExpression: aws.String("#dt = :day"),
		ExpressionAttributeNames: map[string]string{
			"#dt": "date",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":day": &types.AttributeValueMemberS{Value: day},
		},
		Select: types.SelectCount,
	})
	total := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("repository: CountByDay %s: %w", day, err)
		}
		total += int(page.Count)
	}
	return total, nil
}

// ProjectByDay reads the given attributes of every exchange of one calendar day.
// Attributes that were not projected are left at their zero value.
func (c *Client) ProjectByDay(ctx context.Context, day string, fields ...string) ([]domain.Exchange, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.dateIndex),
		KeyConditionExpression: aws.String("#dt = :day"),
		ExpressionAttributeNames: map[string]string{
			"#dt": "date",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":day": &types.AttributeValueMemberS{Value: day},
		},
	}
	applyProjection(&in.ProjectionExpression, in.ExpressionAttributeNames, fields)

	out, err := c.queryAll(ctx, in, 0)
	if err != nil {
		return nil, fmt.Errorf("repository: ProjectByDay %s: %w", day, err)
	}
	return out, nil
}

// ListByFeedback reads exchanges carrying the given feedback, newest first.
// When maxItems is positive reading stops once that many items were seen.
func (c *Client) ListByFeedback(ctx context.Context, fb domain.Feedback, maxItems int, fields ...string) ([]domain.Exchange, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.feedbackIndex),
		KeyConditionExpression: aws.String("#fb = :fb"),
		ExpressionAttributeNames: map[string]string{
			"#fb": "feedback",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":fb": &types.AttributeValueMemberS{Value: string(fb)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	applyProjection(&in.ProjectionExpression, in.ExpressionAttributeNames, fields)

	out, err := c.queryAll(ctx, in, maxItems)
	if err != nil {
		return nil, fmt.Errorf("repository: ListByFeedback %s: %w", fb, err)
	}
	return out, nil
}

// ScanWithoutFeedback scans the table for exchanges that were never rated.
func (c *Client) ScanWithoutFeedback(ctx context.Context, maxItems int, fields ...string) ([]domain.Exchange, error) {
	in := &dynamodb.ScanInput{
		TableName:        aws.String(c.tableName),
		FilterExpression: aws.String("attribute_not_exists(#fb) OR attribute_type(#fb, :null)"),
		ExpressionAttributeNames: map[string]string{
			"#fb": "feedback",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":null": &types.AttributeValueMemberS{Value: "NULL"},
		},
	}
	applyProjection(&in.ProjectionExpression, in.ExpressionAttributeNames, fields)

	var out []domain.Exchange
	p := dynamodb.NewScanPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ScanWithoutFeedback: %w", err)
		}
		for _, item := range page.Items {
			out = append(out, itemToExchange(item))
		}
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

// UpdateFields sets string attributes on an existing exchange. It returns
// domain.ErrNotFound when the key does not exist.
func (c *Client) UpdateFields(ctx context.Context, conversationID, timestamp string, fields map[string]string) error {
	if len(fields) == 0 {
		return errors.New("repository: UpdateFields: no fields to update")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))
	sets := make([]string, 0, len(keys))
	for i, k := range keys {
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		names[n] = k
		values[v] = &types.AttributeValueMemberS{Value: fields[k]}
		sets = append(sets, n+" = "+v)
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
			"timestamp":      &types.AttributeValueMemberS{Value: timestamp},
		},
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(conversationId)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("repository: UpdateFields: %w", err)
	}
	return nil
}

func (c *Client) queryAll(ctx context.Context, in *dynamodb.QueryInput, maxItems int) ([]domain.Exchange, error) {
	var out []domain.Exchange
	p := dynamodb.NewQueryPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			out = append(out, itemToExchange(item))
		}
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out, nil
}

// applyProjection aliases every field so reserved words (date, timestamp,
// feedback, language) can be projected.
func applyProjection(expr **string, names map[string]string, fields []string) {
	if len(fields) == 0 {
		return
	}
	parts := make([]string, 0, len(fields))
	for i, f := range fields {
		alias := fmt.Sprintf("#p%d", i)
		names[alias] = f
		parts = append(parts, alias)
	}
	*expr = aws.String(strings.Join(parts, ", "))
}

func exchangeItem(ex domain.Exchange) (map[string]types.AttributeValue, error) {
	citations := ex.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	raw, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("encode citations: %w", err)
	}
	item := map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: ex.ConversationID},
		"timestamp":      &types.AttributeValueMemberS{Value: ex.Timestamp},
		"date":           &types.AttributeValueMemberS{Value: ex.Date},
		"question":       &types.AttributeValueMemberS{Value: ex.Question},
		"answer":         &types.AttributeValueMemberS{Value: ex.Answer},
		"citations":      &types.AttributeValueMemberS{Value: string(raw)},
		"citationCount":  numAttr(int64(len(citations))),
		"responseTimeMs": numAttr(ex.ResponseTimeMs),
		"language":       &types.AttributeValueMemberS{Value: ex.Language},
		"status":         &types.AttributeValueMemberS{Value: ex.Status},
		"questionLength": numAttr(int64(len(ex.Question))),
		"answerLength":   numAttr(int64(len(ex.Answer))),
	}
	// Index key attributes must be absent rather than empty.
	if ex.SessionID != "" {
		item["sessionId"] = &types.AttributeValueMemberS{Value: ex.SessionID}
	}
	if ex.ModelID != "" {
		item["modelId"] = &types.AttributeValueMemberS{Value: ex.ModelID}
	}
	if ex.Feedback != domain.FeedbackNone {
		item["feedback"] = &types.AttributeValueMemberS{Value: string(ex.Feedback)}
		item["feedbackTs"] = &types.AttributeValueMemberS{Value: ex.FeedbackTimestamp}
	}
	return item, nil
}

// itemToExchange converts a (possibly projected) item. Missing attributes are
// left empty; citations that fail to decode are dropped.
func itemToExchange(item map[string]types.AttributeValue) domain.Exchange {
	ex := domain.Exchange{
		ConversationID:    optStr(item, "conversationId"),
		Timestamp:         optStr(item, "timestamp"),
		Date:              optStr(item, "date"),
		SessionID:         optStr(item, "sessionId"),
		Question:          optStr(item, "question"),
		Answer:            optStr(item, "answer"),
		CitationCount:     int(optInt(item, "citationCount")),
		ResponseTimeMs:    optInt(item, "responseTimeMs"),
		Language:          optStr(item, "language"),
		ModelID:           optStr(item, "modelId"),
		Status:            optStr(item, "status"),
		Feedback:          domain.Feedback(optStr(item, "feedback")),
		FeedbackTimestamp: optStr(item, "feedbackTs"),
	}
	if raw := optStr(item, "citations"); raw != "" {
		var citations []domain.Citation
		if err := json.Unmarshal([]byte(raw), &citations); err == nil {
			ex.Citations = citations
		}
	}
	return ex
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
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
	parsed, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return int64(parsed), nil
}

func optStr(item map[string]types.AttributeValue, key string) string {
	s, _ := strAttr(item, key)
	return s
}

func optInt(item map[string]types.AttributeValue, key string) int64 {
	n, _ := intAttr(item, key)
	return n
}
