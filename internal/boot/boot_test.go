package boot

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	values map[string]string
	calls  int
	input  *ssm.GetParameterInput
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	f.input = in
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

func TestResolveSecret(t *testing.T) {
	ctx := context.Background()
	client := &fakeSSM{values: map[string]string{"/baby-monitor/key": "from-ssm"}}

	got, err := ResolveSecret(ctx, client, "from-env", "/baby-monitor/key")
	if err != nil || got != "from-env" || client.calls != 0 {
		t.Errorf("env value: got %q, %v, calls %d", got, err, client.calls)
	}

	got, err = ResolveSecret(ctx, client, "", "/baby-monitor/key")
	if err != nil || got != "from-ssm" {
		t.Errorf("ssm value: got %q, %v", got, err)
	}
	if !aws.ToBool(client.input.WithDecryption) {
		t.Error("parameter must be read with decryption")
	}

	_, err = ResolveSecret(ctx, client, "", "/missing")
	var notFound *ssmtypes.ParameterNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("missing parameter error = %v", err)
	}

	got, err = ResolveSecret(ctx, nil, "", "/baby-monitor/key")
	if err != nil || got != "" {
		t.Errorf("nil client: got %q, %v", got, err)
	}
}
