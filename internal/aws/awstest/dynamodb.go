// Package awstest provides in-memory fakes of the AWS clients used by the
// service. They are deterministic and safe for concurrent use, so race tests
// can run against them.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation names accepted by FakeDynamoDB.SetError and FakeDynamoDB.Calls.
const (
	OpPutItem            = "PutItem"
	OpGetItem            = "GetItem"
	OpUpdateItem         = "UpdateItem"
	OpQuery              = "Query"
	OpTransactWriteItems = "TransactWriteItems"
)

// FakeDynamoDB models a single table with a composite PK/SK primary key and
// any number of global secondary indexes keyed by a single partition attribute.
//
// Only the expression forms the stores emit are understood: clauses joined by
// AND, each one of `attribute_exists(a)`, `attribute_not_exists(a)`,
// `begins_with(a, :v)` or `a = :v`, and update expressions of the form
// `SET a = :v, b = :w`. Anything else fails loudly.
type FakeDynamoDB struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	indexes map[string]string
	errs    map[string]error
	calls   map[string]int
}

// NewFakeDynamoDB returns an empty table with the "status-index" GSI on status.
func NewFakeDynamoDB() *FakeDynamoDB {
	return &FakeDynamoDB{
		items:   map[string]map[string]types.AttributeValue{},
		indexes: map[string]string{"status-index": "status"},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

// SetError makes every subsequent call of op fail with err. A nil err clears it.
func (f *FakeDynamoDB) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls reports how many times op was invoked, failed calls included.
func (f *FakeDynamoDB) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls reports the number of calls across all operations.
func (f *FakeDynamoDB) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Seed stores item unconditionally.
func (f *FakeDynamoDB) Seed(item map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, err := itemKey(item)
	if err != nil {
		return err
	}
	f.items[k] = copyItem(item)
	return nil
}

// Item returns a copy of the item stored under pk/sk, or nil.
func (f *FakeDynamoDB) Item(pk, sk string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[pk+"|"+sk]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Len returns the number of stored items.
func (f *FakeDynamoDB) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *FakeDynamoDB) begin(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *FakeDynamoDB) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpPutItem); err != nil {
		return nil, err
	}
	k, err := itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(params.ConditionExpression, f.items[k], params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}
	f.items[k] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *FakeDynamoDB) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpGetItem); err != nil {
		return nil, err
	}
	k, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := f.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *FakeDynamoDB) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpUpdateItem); err != nil {
		return nil, err
	}
	k, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	current := f.items[k]
	ok, err := evalCondition(params.ConditionExpression, current, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}

	next := copyItem(current)
	if next == nil {
		next = copyItem(params.Key)
	}
	if err := applyUpdate(sdkaws.ToString(params.UpdateExpression), next, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	f.items[k] = next

	out := &dyn.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(next)
	}
	return out, nil
}

func (f *FakeDynamoDB) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpQuery); err != nil {
		return nil, err
	}
	if params.KeyConditionExpression == nil {
		return nil, errors.New("awstest: query without key condition")
	}

	var indexAttr string
	if params.IndexName != nil {
		attr, ok := f.indexes[*params.IndexName]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: sdkaws.String("index not found: " + *params.IndexName)}
		}
		indexAttr = attr
	}

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &dyn.QueryOutput{Items: []map[string]types.AttributeValue{}}
	for _, k := range keys {
		item := f.items[k]
		if indexAttr != "" {
			if _, ok := item[indexAttr]; !ok {
				continue // sparse index
			}
		}
		ok, err := evalCondition(params.KeyConditionExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = out.Count
	return out, nil
}

func (f *FakeDynamoDB) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpTransactWriteItems); err != nil {
		return nil, err
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	keys := make([]string, len(params.TransactItems))
	cancelled := false
	for i, it := range params.TransactItems {
		if it.Put == nil {
			return nil, errors.New("awstest: only Put is supported in transactions")
		}
		k, err := itemKey(it.Put.Item)
		if err != nil {
			return nil, err
		}
		keys[i] = k
		ok, err := evalCondition(it.Put.ConditionExpression, f.items[k], it.Put.ExpressionAttributeNames, it.Put.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			reasons[i] = types.CancellationReason{Code: sdkaws.String("None")}
			continue
		}
		cancelled = true
		reasons[i] = types.CancellationReason{
			Code:    sdkaws.String("ConditionalCheckFailed"),
			Message: sdkaws.String("The conditional request failed"),
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{
			Message:             sdkaws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for i, it := range params.TransactItems {
		f.items[keys[i]] = copyItem(it.Put.Item)
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: sdkaws.String("The conditional request failed")}
}

func itemKey(item map[string]types.AttributeValue) (string, error) {
	pk, ok := item["PK"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("awstest: missing string PK")
	}
	sk, ok := item["SK"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("awstest: missing string SK")
	}
	return pk.Value + "|" + sk.Value, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func resolveName(tok string, names map[string]string) (string, error) {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "#") {
		name, ok := names[tok]
		if !ok {
			return "", fmt.Errorf("awstest: undefined attribute name %s", tok)
		}
		return name, nil
	}
	return tok, nil
}

func resolveValue(tok string, values map[string]types.AttributeValue) (types.AttributeValue, error) {
	tok = strings.TrimSpace(tok)
	v, ok := values[tok]
	if !ok {
		return nil, fmt.Errorf("awstest: undefined attribute value %s", tok)
	}
	return v, nil
}

func evalCondition(expr *string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		ok, err := evalClause(strings.TrimSpace(clause), item, names, values)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalClause(clause string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")"):
		name, err := resolveName(clause[len("attribute_not_exists("):len(clause)-1], names)
		if err != nil {
			return false, err
		}
		_, exists := item[name]
		return !exists, nil

	case strings.HasPrefix(clause, "attribute_exists(") && strings.HasSuffix(clause, ")"):
		name, err := resolveName(clause[len("attribute_exists("):len(clause)-1], names)
		if err != nil {
			return false, err
		}
		_, exists := item[name]
		return exists, nil

	case strings.HasPrefix(clause, "begins_with(") && strings.HasSuffix(clause, ")"):
		args := strings.SplitN(clause[len("begins_with("):len(clause)-1], ",", 2)
		if len(args) != 2 {
			return false, fmt.Errorf("awstest: malformed clause %q", clause)
		}
		name, err := resolveName(args[0], names)
		if err != nil {
			return false, err
		}
		want, err := resolveValue(args[1], values)
		if err != nil {
			return false, err
		}
		got, ok := item[name].(*types.AttributeValueMemberS)
		prefix, pok := want.(*types.AttributeValueMemberS)
		return ok && pok && strings.HasPrefix(got.Value, prefix.Value), nil

	case strings.Contains(clause, " = "):
		parts := strings.SplitN(clause, " = ", 2)
		name, err := resolveName(parts[0], names)
		if err != nil {
			return false, err
		}
		want, err := resolveValue(parts[1], values)
		if err != nil {
			return false, err
		}
		return attrEqual(item[name], want), nil
	}
	return false, fmt.Errorf("awstest: unsupported clause %q", clause)
}

func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("awstest: unsupported update expression %q", expr)
	}
	for _, assignment := range strings.Split(expr[len("SET "):], ",") {
		parts := strings.SplitN(assignment, " = ", 2)
		if len(parts) != 2 {
			return fmt.Errorf("awstest: malformed assignment %q", assignment)
		}
		name, err := resolveName(parts[0], names)
		if err != nil {
			return err
		}
		v, err := resolveValue(parts[1], values)
		if err != nil {
			return err
		}
		item[name] = v
	}
	return nil
}

func attrEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}
