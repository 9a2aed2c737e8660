package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/domain"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// DynamoDealRepository: deals no DynamoDB
// ============================================================
//
// Tabela:
//   - PK: id (string)
//   - GSI user_id-updated_at-index: PK user_id, SK updated_at
//
// FindLatestByUser consulta o GSI em ordem decrescente com Limit 1.

const (
	defaultDealsTable = "deals"
	dealsUserIndex    = "user_id-updated_at-index"
)

type dealItem struct {
	ID              string                 `dynamodbav:"id"`
	UserID          string                 `dynamodbav:"user_id"`
	Status          string                 `dynamodbav:"status"`
	Product         string                 `dynamodbav:"product"`
	Plan            string                 `dynamodbav:"plan"`
	ListPrice       float64                `dynamodbav:"list_price"`
	DiscountPercent float64                `dynamodbav:"discount_percent"`
	FinalPrice      float64                `dynamodbav:"final_price"`
	PaymentMethod   string                 `dynamodbav:"payment_method,omitempty"`
	Installments    int                    `dynamodbav:"installments,omitempty"`
	ClientName      string                 `dynamodbav:"client_name,omitempty"`
	ClientEmail     string                 `dynamodbav:"client_email,omitempty"`
	ClientPhone     string                 `dynamodbav:"client_phone,omitempty"`
	ClientCompany   string                 `dynamodbav:"client_company,omitempty"`
	StageLog        []domain.StageLogEntry `dynamodbav:"stage_log"`
	CreatedAt       string                 `dynamodbav:"created_at"`
	UpdatedAt       string                 `dynamodbav:"updated_at"`
}

// DynamoAPI é o subconjunto do client usado aqui (facilita fakes).
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDealRepository implementa port.DealRepository.
type DynamoDealRepository struct {
	ddb       DynamoAPI
	tableName string
}

// NewDynamoClient cria o client. endpoint vazio usa o endpoint da AWS;
// com endpoint (DynamoDB local) as credenciais são estáticas.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoDealRepository cria o repositório. tableName vazio usa "deals".
func NewDynamoDealRepository(ddb DynamoAPI, tableName string) *DynamoDealRepository {
	if tableName == "" {
		tableName = defaultDealsTable
	}
	return &DynamoDealRepository{ddb: ddb, tableName: tableName}
}

// Save grava a Deal inteira (PutItem substitui).
func (r *DynamoDealRepository) Save(ctx context.Context, d *domain.Deal) error {
	ctx, span := tracer.Start(ctx, "DynamoDealRepository.Save")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", d.ID))

	av, err := attributevalue.MarshalMap(toDealItem(d))
	if err != nil {
		return fmt.Errorf("marshal deal: %w", err)
	}
	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return resilience.ExternalError("dynamodb/deals", err)
	}
	return nil
}

// FindByID devolve (nil, nil) quando a Deal não existe.
func (r *DynamoDealRepository) FindByID(ctx context.Context, dealID string) (*domain.Deal, error) {
	ctx, span := tracer.Start(ctx, "DynamoDealRepository.FindByID")
	defer span.End()
	span.SetAttributes(attribute.String("deal.id", dealID))

	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: dealID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, resilience.ExternalError("dynamodb/deals", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it dealItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal deal: %w", err)
	}
	return fromDealItem(it), nil
}

// FindLatestByUser devolve a Deal atualizada mais recentemente do usuário.
func (r *DynamoDealRepository) FindLatestByUser(ctx context.Context, userID string) (*domain.Deal, error) {
	ctx, span := tracer.Start(ctx, "DynamoDealRepository.FindLatestByUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(dealsUserIndex),
		KeyConditionExpression: aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{
			"#uid": "user_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, resilience.ExternalError("dynamodb/deals", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var it dealItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &it); err != nil {
		return nil, fmt.Errorf("unmarshal deal: %w", err)
	}
	return fromDealItem(it), nil
}

func toDealItem(d *domain.Deal) dealItem {
	return dealItem{
		ID:              d.ID,
		UserID:          d.UserID,
		Status:          string(d.Status),
		Product:         string(d.Product),
		Plan:            d.Plan,
		ListPrice:       d.ListPrice,
		DiscountPercent: d.DiscountPercent,
		FinalPrice:      d.FinalPrice,
		PaymentMethod:   string(d.PaymentMethod),
		Installments:    d.Installments,
		ClientName:      d.ClientName,
		ClientEmail:     d.ClientEmail,
		ClientPhone:     d.ClientPhone,
		ClientCompany:   d.ClientCompany,
		StageLog:        d.StageLog,
		CreatedAt:       d.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromDealItem(it dealItem) *domain.Deal {
	created, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, it.UpdatedAt)
	return &domain.Deal{
		ID:              it.ID,
		UserID:          it.UserID,
		Status:          domain.DealStatus(it.Status),
		Product:         domain.Topic(it.Product),
		Plan:            it.Plan,
		ListPrice:       it.ListPrice,
		DiscountPercent: it.DiscountPercent,
		FinalPrice:      it.FinalPrice,
		PaymentMethod:   domain.PaymentMethod(it.PaymentMethod),
		Installments:    it.Installments,
		ClientName:      it.ClientName,
		ClientEmail:     it.ClientEmail,
		ClientPhone:     it.ClientPhone,
		ClientCompany:   it.ClientCompany,
		StageLog:        it.StageLog,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}
}
