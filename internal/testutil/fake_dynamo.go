// Package testutil holds in-memory fakes for the AWS services the order
// pipeline talks to. The DynamoDB fake interprets only the expression
// grammar the stores actually emit: attribute_not_exists guards, AND-joined
// =, <> and >= comparisons, SET assignments (including `x = x - :v`) and
// numeric ADD. Anything else fails loudly so a store change that grows the
// grammar breaks tests instead of silently passing.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// FakeDynamo is a minimal multi-table in-memory DynamoDB.
type FakeDynamo struct {
	mu     sync.Mutex
	tables map[string]*fakeTable

	// PageSize, when > 0, caps how many items a Query returns per call and
	// sets LastEvaluatedKey, forcing callers to page like the real service.
	PageSize int

	PutCalls      int
	GetCalls      int
	UpdateCalls   int
	QueryCalls    int
	BatchGetCalls int
	TransactCalls int
}

type fakeTable struct {
	keyAttrs []string
	items    map[string]map[string]types.AttributeValue
}

func NewFakeDynamo() *FakeDynamo {
	return &FakeDynamo{tables: map[string]*fakeTable{}}
}

// CreateTable registers a table and its key attribute names (partition key,
// optionally sort key).
func (f *FakeDynamo) CreateTable(name string, keyAttrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &fakeTable{
		keyAttrs: keyAttrs,
		items:    map[string]map[string]types.AttributeValue{},
	}
}

// Seed inserts an item directly, bypassing conditions.
func (f *FakeDynamo) Seed(table string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(table)
	t.items[t.keyOfItem(item)] = item
}

// Item returns a stored item (or nil) for direct assertions.
func (f *FakeDynamo) Item(table string, keyVals ...string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.mustTable(table)
	key := map[string]types.AttributeValue{}
	for i, attr := range t.keyAttrs {
		key[attr] = &types.AttributeValueMemberS{Value: keyVals[i]}
	}
	return t.items[t.keyOfItem(key)]
}

// Len reports how many items a table holds.
func (f *FakeDynamo) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mustTable(table).items)
}

func (f *FakeDynamo) mustTable(name string) *fakeTable {
	t, ok := f.tables[name]
	if !ok {
		panic(fmt.Sprintf("testutil: table %q not registered", name))
	}
	return t
}

func (t *fakeTable) keyOfItem(item map[string]types.AttributeValue) string {
	parts := make([]string, 0, len(t.keyAttrs))
	for _, attr := range t.keyAttrs {
		parts = append(parts, attr+"="+scalarValue(item[attr]))
	}
	return strings.Join(parts, "|")
}

func scalarValue(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	default:
		panic(fmt.Sprintf("testutil: unsupported key attribute %T", av))
	}
}

func (f *FakeDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++

	t := f.mustTable(*params.TableName)
	existing := t.items[t.keyOfItem(params.Item)]
	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}
	t.items[t.keyOfItem(params.Item)] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *FakeDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++

	t := f.mustTable(*params.TableName)
	item, ok := t.items[t.keyOfItem(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *FakeDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++

	t := f.mustTable(*params.TableName)
	key := t.keyOfItem(params.Key)
	item, exists := t.items[key]

	if params.ConditionExpression != nil {
		ok, err := evalCondition(*params.ConditionExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
		}
	}

	if !exists {
		// DynamoDB upserts on update: start from the key attributes
		item = map[string]types.AttributeValue{}
		for attr, v := range params.Key {
			item[attr] = v
		}
	}

	if err := applyUpdate(*params.UpdateExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	t.items[key] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (f *FakeDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QueryCalls++

	t := f.mustTable(*params.TableName)
	var out []map[string]types.AttributeValue
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	startAfter := ""
	if len(params.ExclusiveStartKey) > 0 {
		startAfter = t.keyOfItem(params.ExclusiveStartKey)
	}

	var lastKey map[string]types.AttributeValue
	for _, k := range keys {
		if startAfter != "" && k <= startAfter {
			continue
		}
		item := t.items[k]
		ok, err := evalCondition(*params.KeyConditionExpression, item, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, copyItem(item))
		if f.PageSize > 0 && len(out) == f.PageSize {
			lastKey = map[string]types.AttributeValue{}
			for _, attr := range t.keyAttrs {
				lastKey[attr] = item[attr]
			}
			break
		}
	}
	return &dyn.QueryOutput{Items: out, LastEvaluatedKey: lastKey}, nil
}

func (f *FakeDynamo) BatchGetItem(ctx context.Context, params *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BatchGetCalls++

	responses := map[string][]map[string]types.AttributeValue{}
	for tableName, req := range params.RequestItems {
		t := f.mustTable(tableName)
		for _, key := range req.Keys {
			if item, ok := t.items[t.keyOfItem(key)]; ok {
				responses[tableName] = append(responses[tableName], copyItem(item))
			}
		}
	}
	return &dyn.BatchGetItemOutput{Responses: responses}, nil
}

func (f *FakeDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransactCalls++

	// phase 1: evaluate every condition against current state
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		ok, err := f.checkTransactItem(ti)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons[i] = types.CancellationReason{Code: strPtr("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	// phase 2: apply
	for _, ti := range params.TransactItems {
		if err := f.applyTransactItem(ti); err != nil {
			return nil, err
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *FakeDynamo) checkTransactItem(ti types.TransactWriteItem) (bool, error) {
	switch {
	case ti.ConditionCheck != nil:
		cc := ti.ConditionCheck
		t := f.mustTable(*cc.TableName)
		item := t.items[t.keyOfItem(cc.Key)]
		return evalCondition(*cc.ConditionExpression, item, cc.ExpressionAttributeNames, cc.ExpressionAttributeValues)
	case ti.Put != nil:
		p := ti.Put
		if p.ConditionExpression == nil {
			return true, nil
		}
		t := f.mustTable(*p.TableName)
		item := t.items[t.keyOfItem(p.Item)]
		return evalCondition(*p.ConditionExpression, item, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
	case ti.Update != nil:
		u := ti.Update
		if u.ConditionExpression == nil {
			return true, nil
		}
		t := f.mustTable(*u.TableName)
		item := t.items[t.keyOfItem(u.Key)]
		return evalCondition(*u.ConditionExpression, item, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
	default:
		return false, fmt.Errorf("testutil: unsupported transact item")
	}
}

func (f *FakeDynamo) applyTransactItem(ti types.TransactWriteItem) error {
	switch {
	case ti.ConditionCheck != nil:
		return nil
	case ti.Put != nil:
		t := f.mustTable(*ti.Put.TableName)
		t.items[t.keyOfItem(ti.Put.Item)] = copyItem(ti.Put.Item)
		return nil
	case ti.Update != nil:
		u := ti.Update
		t := f.mustTable(*u.TableName)
		key := t.keyOfItem(u.Key)
		item, exists := t.items[key]
		if !exists {
			item = map[string]types.AttributeValue{}
			for attr, v := range u.Key {
				item[attr] = v
			}
		}
		if err := applyUpdate(*u.UpdateExpression, item, u.ExpressionAttributeNames, u.ExpressionAttributeValues); err != nil {
			return err
		}
		t.items[key] = item
		return nil
	default:
		return fmt.Errorf("testutil: unsupported transact item")
	}
}

// --- expression interpreter ---

func resolveName(token string, names map[string]string) (string, error) {
	if strings.HasPrefix(token, "#") {
		name, ok := names[token]
		if !ok {
			return "", fmt.Errorf("testutil: unresolved name %s", token)
		}
		return name, nil
	}
	return token, nil
}

func resolvePath(path string, names map[string]string) ([]string, error) {
	segs := strings.Split(path, ".")
	out := make([]string, len(segs))
	for i, seg := range segs {
		name, err := resolveName(seg, names)
		if err != nil {
			return nil, err
		}
		out[i] = name
	}
	return out, nil
}

func getAttr(item map[string]types.AttributeValue, path []string) (types.AttributeValue, bool) {
	if item == nil {
		return nil, false
	}
	cur := item
	for i, seg := range path {
		av, ok := cur[seg]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return av, true
		}
		m, ok := av.(*types.AttributeValueMemberM)
		if !ok {
			return nil, false
		}
		cur = m.Value
	}
	return nil, false
}

func setAttr(item map[string]types.AttributeValue, path []string, val types.AttributeValue) error {
	cur := item
	for i, seg := range path {
		if i == len(path)-1 {
			cur[seg] = val
			return nil
		}
		av, ok := cur[seg]
		if !ok {
			next := &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{}}
			cur[seg] = next
			cur = next.Value
			continue
		}
		m, ok := av.(*types.AttributeValueMemberM)
		if !ok {
			return fmt.Errorf("testutil: path %v crosses non-map attribute", path)
		}
		cur = m.Value
	}
	return nil
}

func evalCondition(cond string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(cond, " AND ") {
		clause = strings.TrimSpace(clause)

		if strings.HasPrefix(clause, "attribute_not_exists(") && strings.HasSuffix(clause, ")") {
			inner := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
			path, err := resolvePath(inner, names)
			if err != nil {
				return false, err
			}
			if _, exists := getAttr(item, path); exists {
				return false, nil
			}
			continue
		}

		fields := strings.Fields(clause)
		if len(fields) != 3 {
			return false, fmt.Errorf("testutil: unsupported condition clause %q", clause)
		}
		path, err := resolvePath(fields[0], names)
		if err != nil {
			return false, err
		}
		rhs, ok := values[fields[2]]
		if !ok {
			return false, fmt.Errorf("testutil: unresolved value %s", fields[2])
		}
		lhs, exists := getAttr(item, path)
		if !exists {
			// comparisons against a missing attribute never hold
			return false, nil
		}

		holds, err := compare(lhs, fields[1], rhs)
		if err != nil {
			return false, err
		}
		if !holds {
			return false, nil
		}
	}
	return true, nil
}

func compare(lhs types.AttributeValue, op string, rhs types.AttributeValue) (bool, error) {
	ln, lIsNum := lhs.(*types.AttributeValueMemberN)
	rn, rIsNum := rhs.(*types.AttributeValueMemberN)
	if lIsNum && rIsNum {
		l, err := strconv.ParseFloat(ln.Value, 64)
		if err != nil {
			return false, err
		}
		r, err := strconv.ParseFloat(rn.Value, 64)
		if err != nil {
			return false, err
		}
		switch op {
		case "=":
			return l == r, nil
		case "<>":
			return l != r, nil
		case ">=":
			return l >= r, nil
		}
		return false, fmt.Errorf("testutil: unsupported operator %q", op)
	}

	ls, lOK := lhs.(*types.AttributeValueMemberS)
	rs, rOK := rhs.(*types.AttributeValueMemberS)
	if lOK && rOK {
		switch op {
		case "=":
			return ls.Value == rs.Value, nil
		case "<>":
			return ls.Value != rs.Value, nil
		}
		return false, fmt.Errorf("testutil: unsupported string operator %q", op)
	}
	return false, fmt.Errorf("testutil: mismatched comparison types %T vs %T", lhs, rhs)
}

func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, "SET "):
		for _, assignment := range strings.Split(strings.TrimPrefix(expr, "SET "), ", ") {
			if err := applySet(assignment, item, names, values); err != nil {
				return err
			}
		}
		return nil
	case strings.HasPrefix(expr, "ADD "):
		fields := strings.Fields(strings.TrimPrefix(expr, "ADD "))
		if len(fields) != 2 {
			return fmt.Errorf("testutil: unsupported ADD expression %q", expr)
		}
		path, err := resolvePath(fields[0], names)
		if err != nil {
			return err
		}
		delta, ok := values[fields[1]]
		if !ok {
			return fmt.Errorf("testutil: unresolved value %s", fields[1])
		}
		cur := 0.0
		if existing, exists := getAttr(item, path); exists {
			n, ok := existing.(*types.AttributeValueMemberN)
			if !ok {
				return fmt.Errorf("testutil: ADD on non-numeric attribute")
			}
			parsed, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return err
			}
			cur = parsed
		}
		d, err := strconv.ParseFloat(delta.(*types.AttributeValueMemberN).Value, 64)
		if err != nil {
			return err
		}
		return setAttr(item, path, &types.AttributeValueMemberN{Value: formatNumber(cur + d)})
	default:
		return fmt.Errorf("testutil: unsupported update expression %q", expr)
	}
}

func applySet(assignment string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	fields := strings.Fields(assignment)
	path, err := resolvePath(fields[0], names)
	if err != nil {
		return err
	}

	// `path = :v`
	if len(fields) == 3 && fields[1] == "=" {
		val, ok := values[fields[2]]
		if !ok {
			return fmt.Errorf("testutil: unresolved value %s", fields[2])
		}
		return setAttr(item, path, val)
	}

	// `path = path - :v`
	if len(fields) == 5 && fields[1] == "=" && fields[3] == "-" {
		srcPath, err := resolvePath(fields[2], names)
		if err != nil {
			return err
		}
		src, exists := getAttr(item, srcPath)
		if !exists {
			return fmt.Errorf("testutil: subtraction source missing: %s", fields[2])
		}
		cur, err := strconv.ParseFloat(src.(*types.AttributeValueMemberN).Value, 64)
		if err != nil {
			return err
		}
		delta, ok := values[fields[4]]
		if !ok {
			return fmt.Errorf("testutil: unresolved value %s", fields[4])
		}
		d, err := strconv.ParseFloat(delta.(*types.AttributeValueMemberN).Value, 64)
		if err != nil {
			return err
		}
		return setAttr(item, path, &types.AttributeValueMemberN{Value: formatNumber(cur - d)})
	}

	return fmt.Errorf("testutil: unsupported SET assignment %q", assignment)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
