package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock invokes models through the AWS Bedrock runtime.
type Bedrock struct {
	api     bedrockAPI
	creds   aws.CredentialsProvider
	timeout time.Duration
}

func NewBedrock(ctx context.Context, region string, timeout time.Duration) (*Bedrock, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Bedrock{api: bedrockruntime.NewFromConfig(awsCfg), creds: awsCfg.Credentials, timeout: timeout}, nil
}

// CheckCredentials resolves AWS credentials through the default chain
// without invoking a model.
func (b *Bedrock) CheckCredentials(ctx context.Context) error {
	if b.creds == nil {
		return errors.New("no AWS credentials provider configured")
	}
	creds, err := b.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("resolving AWS credentials: %w", err)
	}
	if !creds.HasKeys() {
		return errors.New("AWS credentials have no access key")
	}
	return nil
}

func (b *Bedrock) Invoke(ctx context.Context, modelID string, payload []byte) ([]byte, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Body:        payload,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, classifyBedrock(ctx, modelID, err)
	}
	return out.Body, nil
}

func classifyBedrock(ctx context.Context, modelID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(ErrTimeout, modelID, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var accessDenied *types.AccessDeniedException
	var notFound *types.ResourceNotFoundException
	var validation *types.ValidationException
	var throttled *types.ThrottlingException
	var modelTimeout *types.ModelTimeoutException
	var unavailable *types.ServiceUnavailableException
	switch {
	case errors.As(err, &accessDenied):
		return newError(ErrAccessDenied, modelID, accessDenied.ErrorMessage())
	case errors.As(err, &notFound):
		return newError(ErrNotFound, modelID, notFound.ErrorMessage())
	case errors.As(err, &validation) && needsProfile(validation.ErrorMessage()):
		return newError(ErrProfileRequired, modelID, validation.ErrorMessage())
	case errors.As(err, &throttled):
		return newError(ErrThrottled, modelID, throttled.ErrorMessage())
	case errors.As(err, &modelTimeout):
		return newError(ErrTimeout, modelID, modelTimeout.ErrorMessage())
	case errors.As(err, &unavailable):
		return newError(ErrUnavailable, modelID, unavailable.ErrorMessage())
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.ErrorCode() == "AccessDeniedException":
			return newError(ErrAccessDenied, modelID, apiErr.ErrorMessage())
		case needsProfile(apiErr.ErrorMessage()):
			return newError(ErrProfileRequired, modelID, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("bedrock invoke %s: %w", modelID, err)
}

// Newer models reject on-demand invocation and must be called through an
// inference profile.
func needsProfile(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "inference profile") || strings.Contains(lower, "on-demand throughput")
}
