package awstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// FakeSQS records every SendMessage call.
type FakeSQS struct {
	mu   sync.Mutex
	sent []*sqs.SendMessageInput
	// Err, when set, is returned by SendMessage.
	Err error
}

func NewFakeSQS() *FakeSQS { return &FakeSQS{} }

func (f *FakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.sent = append(f.sent, params)
	id := fmt.Sprintf("msg-%d", len(f.sent))
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// Messages returns the inputs of successful sends, oldest first.
func (f *FakeSQS) Messages() []*sqs.SendMessageInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*sqs.SendMessageInput, len(f.sent))
	copy(out, f.sent)
	return out
}
