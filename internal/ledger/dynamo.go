package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/reelerr"
)

// DynamoDB key layout: every record for one account shares PK=LEDGER#{account};
// SK=ITEM#{id} makes the ID the uniqueness key. The seq attribute keeps
// posting order, since Query returns items in SK order.
const (
	pkPrefix   = "LEDGER#"
	skItem     = "ITEM#"
	seqAttr    = "seq"
	defaultAcc = "default"
)

// DynamoAPI is the subset of the DynamoDB client the ledger uses.
type DynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoLedger stores one item per posted record in a DynamoDB table.
//
// Save only writes records it has not seen persisted, with a conditional put
// on the item key, so the table can never hold the same ID twice.
type DynamoLedger struct {
	client    DynamoAPI
	tableName string
	account   string

	persisted map[string]struct{}
}

// Compile-time interface check.
var _ Ledger = (*DynamoLedger)(nil)

// NewDynamoLedger creates a ledger in tableName, partitioned by account
// (the Instagram user or bot name). An empty account uses "default".
func NewDynamoLedger(client DynamoAPI, tableName, account string) *DynamoLedger {
	if strings.TrimSpace(account) == "" {
		account = defaultAcc
	}
	return &DynamoLedger{
		client:    client,
		tableName: tableName,
		account:   account,
		persisted: make(map[string]struct{}),
	}
}

type dynamoRecord struct {
	Record
	Seq int `dynamodbav:"seq"`
}

func (l *DynamoLedger) pk() string {
	return pkPrefix + l.account
}

func (l *DynamoLedger) Load(ctx context.Context) ([]Record, error) {
	input := &dynamodb.QueryInput{
		TableName:              &l.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: l.pk()},
			":sk": &types.AttributeValueMemberS{Value: skItem},
		},
	}

	var rows []dynamoRecord

	// Query returns up to 1MB per call.
	for {
		result, err := l.client.Query(ctx, input)
		if err != nil {
			return nil, reelerr.Wrap(reelerr.ErrIO, "query ledger table "+l.tableName, err)
		}
		for _, item := range result.Items {
			var row dynamoRecord
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, reelerr.Wrap(reelerr.ErrIO, "unmarshal ledger item", err)
			}
			sk, ok := item["SK"].(*types.AttributeValueMemberS)
			if !ok {
				return nil, reelerr.Wrap(reelerr.ErrIO, "ledger item without SK", nil)
			}
			row.ID = strings.TrimPrefix(sk.Value, skItem)
			rows = append(rows, row)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record)
		l.persisted[row.ID] = struct{}{}
	}
	log.Debug().Str("table", l.tableName).Int("records", len(records)).Msg("Ledger loaded from DynamoDB")
	return records, nil
}

// Save writes the records not yet persisted. When another writer already
// holds one of the IDs, the rest are still written and the error wraps
// ErrConcurrentRecord.
func (l *DynamoLedger) Save(ctx context.Context, records []Record) error {
	var conflicts []string
	for i, rec := range records {
		if _, ok := l.persisted[rec.ID]; ok {
			continue
		}
		err := l.put(ctx, rec, i)
		if errors.Is(err, ErrConcurrentRecord) {
			conflicts = append(conflicts, rec.ID)
		} else if err != nil {
			return err
		}
		l.persisted[rec.ID] = struct{}{}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", ErrConcurrentRecord, strings.Join(conflicts, ", "))
	}
	return nil
}

func (l *DynamoLedger) put(ctx context.Context, rec Record, seq int) error {
	item, err := attributevalue.MarshalMap(dynamoRecord{Record: rec, Seq: seq})
	if err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "marshal ledger record", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: l.pk()}
	item["SK"] = &types.AttributeValueMemberS{Value: skItem + rec.ID}
	item[seqAttr] = &types.AttributeValueMemberN{Value: strconv.Itoa(seq)}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &l.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	var conflict *types.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		log.Error().Str("itemId", rec.ID).Str("table", l.tableName).
			Msg("Ledger record written by a concurrent cycle, item was likely published twice")
		return ErrConcurrentRecord
	}
	if err != nil {
		return reelerr.Wrap(reelerr.ErrIO, fmt.Sprintf("PutItem PK=%s SK=%s%s", l.pk(), skItem, rec.ID), err)
	}
	return nil
}
