package awstest

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

// FakeCloudWatch records every PutMetricData call.
type FakeCloudWatch struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
	// Err, when set, is returned by PutMetricData.
	Err error
}

func NewFakeCloudWatch() *FakeCloudWatch { return &FakeCloudWatch{} }

func (f *FakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.calls = append(f.calls, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Calls returns the inputs of successful calls, oldest first.
func (f *FakeCloudWatch) Calls() []*cloudwatch.PutMetricDataInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*cloudwatch.PutMetricDataInput, len(f.calls))
	copy(out, f.calls)
	return out
}
