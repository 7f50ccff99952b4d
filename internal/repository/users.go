package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"museum-chatbot/internal/domain"
)

const (
	attrUserID    = "userId"
	attrCreatedAt = "createdAt"
)

// UserClient wraps the user information table, keyed by userId + createdAt.
type UserClient struct {
	api       dynamodbAPI
	tableName string
}

// NewUserClient creates a UserClient for the given table.
func NewUserClient(api dynamodbAPI, tableName string) (*UserClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &UserClient{api: api, tableName: tableName}, nil
}

func (c *UserClient) PutUser(ctx context.Context, u domain.User) error {
	if u.UserID == "" || u.CreatedAt == "" {
		return errors.New("repository: PutUser: userId and createdAt are required")
	}
	item, err := userItem(u)
	if err != nil {
		return fmt.Errorf("repository: PutUser: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("repository: PutUser: %w", err)
	}
	return nil
}

// GetUser returns one record or domain.ErrNotFound.
func (c *UserClient) GetUser(ctx context.Context, userID, createdAt string) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       userKey(userID, createdAt),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	u, err := itemToUser(out.Item)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser: %w", err)
	}
	return u, nil
}

// QueryUser returns every record stored for userID.
func (c *UserClient) QueryUser(ctx context.Context, userID string) ([]domain.User, error) {
	p := dynamodb.NewQueryPaginator(c.api, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("userId = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	users := []domain.User{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: QueryUser: %w", err)
		}
		for _, item := range page.Items {
			u, err := itemToUser(item)
			if err != nil {
				return nil, fmt.Errorf("repository: QueryUser: %w", err)
			}
			users = append(users, u)
		}
	}
	return users, nil
}

// UpdateUser sets the given fields and returns the full updated record.
func (c *UserClient) UpdateUser(ctx context.Context, userID, createdAt string, fields map[string]any) (domain.User, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == attrUserID || k == attrCreatedAt {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return domain.User{}, errors.New("repository: UpdateUser: no fields to update")
	}
	sort.Strings(keys)

	names := make(map[string]string, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))
	sets := make([]string, 0, len(keys))
	for i, k := range keys {
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return domain.User{}, fmt.Errorf("repository: UpdateUser: encode %q: %w", k, err)
		}
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		names[n] = k
		values[v] = av
		sets = append(sets, n+" = "+v)
	}

	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       userKey(userID, createdAt),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(userId)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("repository: UpdateUser: %w", err)
	}
	if out == nil {
		return domain.User{}, errors.New("repository: UpdateUser: empty response")
	}
	u, err := itemToUser(out.Attributes)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: UpdateUser: %w", err)
	}
	return u, nil
}

func (c *UserClient) DeleteUser(ctx context.Context, userID, createdAt string) error {
	if _, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       userKey(userID, createdAt),
	}); err != nil {
		return fmt.Errorf("repository: DeleteUser: %w", err)
	}
	return nil
}

// ScanUsers reads the whole table, projecting fields when given.
func (c *UserClient) ScanUsers(ctx context.Context, fields ...string) ([]domain.User, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(c.tableName)}
	if len(fields) > 0 {
		in.ExpressionAttributeNames = map[string]string{}
		applyProjection(&in.ProjectionExpression, in.ExpressionAttributeNames, fields)
	}
	users := []domain.User{}
	p := dynamodb.NewScanPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: ScanUsers: %w", err)
		}
		for _, item := range page.Items {
			u, err := itemToUser(item)
			if err != nil {
				return nil, fmt.Errorf("repository: ScanUsers: %w", err)
			}
			users = append(users, u)
		}
	}
	return users, nil
}

func userKey(userID, createdAt string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID:    &types.AttributeValueMemberS{Value: userID},
		attrCreatedAt: &types.AttributeValueMemberS{Value: createdAt},
	}
}

func userItem(u domain.User) (map[string]types.AttributeValue, error) {
	fields := make(map[string]any, len(u.Fields)+2)
	for k, v := range u.Fields {
		fields[k] = v
	}
	fields[attrUserID] = u.UserID
	fields[attrCreatedAt] = u.CreatedAt
	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	return item, nil
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	var fields map[string]any
	if err := attributevalue.UnmarshalMap(item, &fields); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	u := domain.User{Fields: fields}
	u.UserID, _ = fields[attrUserID].(string)
	u.CreatedAt, _ = fields[attrCreatedAt].(string)
	delete(fields, attrUserID)
	delete(fields, attrCreatedAt)
	return u, nil
}
