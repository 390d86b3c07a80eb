// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/ir"
	"github.com/teradata-labs/loomgate/pkg/llm"
)

// Default Bedrock configuration values.
const (
	DefaultBedrockModelID     = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultBedrockRegion      = "us-west-2"
	DefaultBedrockMaxTokens   = 4096
	DefaultBedrockTemperature = 1.0
)

// Config holds the AWS session and generation defaults for a Bedrock client.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string

	MaxTokens   int
	Temperature float64

	RateLimiterConfig llm.RateLimiterConfig
	Logger            *zap.Logger
}

// Client implements the gateway's provider-adapter contract over AWS
// Bedrock's Converse API.
type Client struct {
	sdk         *bedrockruntime.Client
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
	logger      *zap.Logger
}

// NewClient builds a Bedrock client from the given AWS/session configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultBedrockRegion
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultBedrockMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultBedrockTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)),
		)
	case cfg.Profile != "":
		awsCfg, err = config.LoadDefaultConfig(context.Background(),
			config.WithRegion(cfg.Region),
			config.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		awsCfg, err = config.LoadDefaultConfig(context.Background(), config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var rateLimiter *llm.RateLimiter
	if cfg.RateLimiterConfig.Enabled {
		rateLimiter = llm.NewRateLimiter(cfg.RateLimiterConfig)
	}

	return &Client{
		sdk:         bedrockruntime.NewFromConfig(awsCfg),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		rateLimiter: rateLimiter,
		logger:      cfg.Logger,
	}, nil
}

// Name identifies this adapter in routing and error messages.
func (c *Client) Name() string { return "bedrock" }

// Complete sends a buffered Converse request.
func (c *Client) Complete(ctx context.Context, req *ir.Request) (*ir.Response, error) {
	input, names := c.buildInput(req)

	output, err := c.converse(ctx, input)
	if err != nil {
		return nil, err
	}

	out := FromNativeResponse(output, names)
	out.Model = req.Model
	if c.rateLimiter != nil {
		c.rateLimiter.RecordTokenUsage(int64(out.Usage.TotalTokens))
	}
	return out, nil
}

// Stream consumes a ConverseStream response. Bedrock's tool-argument
// deltas are known to arrive malformed for several model families, so the
// gateway degrades gracefully: a stream request still gets incremental
// text, but tool-call argument fragments are only trustworthy once the
// block closes (see stream.go).
func (c *Client) Stream(ctx context.Context, req *ir.Request, onChunk func(*ir.Chunk) error) error {
	input, names := c.buildInput(req)

	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.Model),
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
		ToolConfig:      input.ToolConfig,
	}

	var output *bedrockruntime.ConverseStreamOutput
	var err error
	if c.rateLimiter != nil {
		result, rlErr := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.sdk.ConverseStream(ctx, streamInput)
		})
		if rlErr != nil {
			return statusToError(rlErr)
		}
		output = result.(*bedrockruntime.ConverseStreamOutput)
	} else {
		output, err = c.sdk.ConverseStream(ctx, streamInput)
		if err != nil {
			return statusToError(err)
		}
	}

	stream := output.GetStream()
	defer stream.Close()

	reader := NewStreamReader(names)
	for event := range stream.Events() {
		chunk, err := reader.Feed(event)
		if err != nil {
			continue
		}
		if chunk == nil {
			continue
		}
		chunk.Model = req.Model
		if err := onChunk(chunk); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if err := stream.Err(); err != nil {
		return gatewayerr.Wrap(gatewayerr.TransportError, err, "reading bedrock stream")
	}
	return nil
}

func (c *Client) buildInput(req *ir.Request) (*bedrockruntime.ConverseInput, toolNameMap) {
	system, messages, toolConfig, names := ToNative(req, c.logger)

	maxTokens := c.maxTokens
	temperature := c.temperature
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(float32(temperature)),
		},
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	return input, names
}

func (c *Client) converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	if c.rateLimiter != nil {
		result, err := c.rateLimiter.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return c.sdk.Converse(ctx, input)
		})
		if err != nil {
			return nil, statusToError(err)
		}
		return result.(*bedrockruntime.ConverseOutput), nil
	}
	output, err := c.sdk.Converse(ctx, input)
	if err != nil {
		return nil, statusToError(err)
	}
	return output, nil
}

// statusToError classifies a Bedrock SDK error into the canonical upstream
// error kinds. The SDK surfaces these as typed smithy API errors
// rather than HTTP status codes.
func statusToError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case isErrType[*bedrocktypes.ValidationException](err):
		return gatewayerr.Upstream(gatewayerr.UpstreamBadRequest, "bedrock: %s", msg)
	case isErrType[*bedrocktypes.ResourceNotFoundException](err):
		return gatewayerr.Upstream(gatewayerr.UpstreamModelMissing, "bedrock: %s", msg)
	case isErrType[*bedrocktypes.ThrottlingException](err):
		return gatewayerr.Upstream(gatewayerr.UpstreamRateLimit, "bedrock: %s", msg)
	case isErrType[*bedrocktypes.AccessDeniedException](err):
		return gatewayerr.Upstream(gatewayerr.UpstreamAuth, "bedrock: %s", msg)
	case isErrType[*bedrocktypes.ServiceUnavailableException](err):
		return gatewayerr.Upstream(gatewayerr.UpstreamUnavailable, "bedrock: %s", msg)
	case isErrType[*bedrocktypes.InternalServerException](err):
		return gatewayerr.Upstream(gatewayerr.UpstreamInternal, "bedrock: %s", msg)
	default:
		return gatewayerr.Wrap(gatewayerr.TransportError, err, "bedrock request failed")
	}
}

func isErrType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
