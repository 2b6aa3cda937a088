package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/skylift-dev/skylift/pkg/config"
	"github.com/skylift-dev/skylift/pkg/domain/types"
	"github.com/skylift-dev/skylift/pkg/packaging"
)

const (
	defaultAWSRegion  = "us-east-1"
	defaultAWSRuntime = "python3.9"
	defaultAWSHandler = "handler.lambda_handler"

	// liveAlias is the Lambda alias skylift points at the currently
	// deployed version. Rollback repoints it at a prior version.
	liveAlias = "live"

	updateWaitTimeout = 2 * time.Minute
)

// lambdaAPI is the subset of the Lambda service client the AWS provider
// uses. Narrowing the surface keeps the client testable.
type lambdaAPI interface {
	GetFunction(ctx context.Context, in *lambda.GetFunctionInput, opts ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	CreateFunction(ctx context.Context, in *lambda.CreateFunctionInput, opts ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, in *lambda.UpdateFunctionCodeInput, opts ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, in *lambda.UpdateFunctionConfigurationInput, opts ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	ListFunctions(ctx context.Context, in *lambda.ListFunctionsInput, opts ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
	DeleteFunction(ctx context.Context, in *lambda.DeleteFunctionInput, opts ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
	GetAlias(ctx context.Context, in *lambda.GetAliasInput, opts ...func(*lambda.Options)) (*lambda.GetAliasOutput, error)
	CreateAlias(ctx context.Context, in *lambda.CreateAliasInput, opts ...func(*lambda.Options)) (*lambda.CreateAliasOutput, error)
	UpdateAlias(ctx context.Context, in *lambda.UpdateAliasInput, opts ...func(*lambda.Options)) (*lambda.UpdateAliasOutput, error)
}

// AWSOptions configures the AWS Lambda provider client.
type AWSOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// RoleARN is the execution role used when creating new functions.
	RoleARN string
}

// AWSClient deploys functions to AWS Lambda. Every deploy publishes a new
// immutable version and repoints the live alias at it; the published
// version number is the artifact reference.
type AWSClient struct {
	api     lambdaAPI
	roleARN string
	log     *logrus.Entry
}

// NewAWSClient builds an AWS Lambda client from static credentials.
func NewAWSClient(ctx context.Context, opts AWSOptions) (*AWSClient, error) {
	if opts.AccessKeyID == "" || opts.SecretAccessKey == "" {
		return nil, NewError(types.ProviderAWS, "", KindAuth,
			errors.New("AWS credentials not found, set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY"))
	}

	region := opts.Region
	if region == "" {
		region = defaultAWSRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS client: %w", err)
	}

	return &AWSClient{
		api:     lambda.NewFromConfig(cfg),
		roleARN: opts.RoleARN,
		log:     logrus.WithField("provider", types.ProviderAWS),
	}, nil
}

// Provider implements Client.
func (c *AWSClient) Provider() types.Provider {
	return types.ProviderAWS
}

// DeployFunction implements Client. It creates the function if it does not
// exist, otherwise updates its code and configuration, then publishes a
// version and repoints the live alias.
func (c *AWSClient) DeployFunction(ctx context.Context, spec config.FunctionSpec, env map[string]string) (string, error) {
	zipBytes, err := packaging.Archive(spec.Path)
	if err != nil {
		return "", NewError(types.ProviderAWS, spec.Name, KindValidation, err)
	}

	handler := spec.Handler
	if handler == "" {
		handler = defaultAWSHandler
	}
	runtime := spec.Runtime
	if runtime == "" {
		runtime = defaultAWSRuntime
	}

	_, err = c.api.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(spec.Name),
	})

	var version string
	switch {
	case err == nil:
		c.log.WithField("function", spec.Name).Info("updating existing function")
		version, err = c.updateFunction(ctx, spec, zipBytes, handler, runtime, env)
	case isNotFound(err):
		c.log.WithField("function", spec.Name).Info("creating new function")
		version, err = c.createFunction(ctx, spec, zipBytes, handler, runtime, env)
	default:
		return "", c.classify(spec.Name, err)
	}
	if err != nil {
		return "", err
	}

	if err := c.pointAlias(ctx, spec.Name, version); err != nil {
		return "", err
	}

	return version, nil
}

func (c *AWSClient) updateFunction(ctx context.Context, spec config.FunctionSpec, zipBytes []byte, handler, runtime string, env map[string]string) (string, error) {
	out, err := c.api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(spec.Name),
		ZipFile:      zipBytes,
		Publish:      true,
	})
	if err != nil {
		return "", c.classify(spec.Name, err)
	}

	if err := c.waitUpdated(ctx, spec.Name); err != nil {
		return "", c.classify(spec.Name, err)
	}

	_, err = c.api.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(spec.Name),
		Handler:      aws.String(handler),
		Runtime:      lambdatypes.Runtime(runtime),
		Timeout:      aws.Int32(int32(spec.Timeout)),
		MemorySize:   aws.Int32(int32(spec.Memory)),
		Environment:  &lambdatypes.Environment{Variables: env},
	})
	if err != nil {
		return "", c.classify(spec.Name, err)
	}

	return aws.ToString(out.Version), nil
}

func (c *AWSClient) createFunction(ctx context.Context, spec config.FunctionSpec, zipBytes []byte, handler, runtime string, env map[string]string) (string, error) {
	if c.roleARN == "" {
		return "", NewError(types.ProviderAWS, spec.Name, KindValidation,
			errors.New("AWS_LAMBDA_ROLE_ARN is required to create new functions"))
	}

	out, err := c.api.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: aws.String(spec.Name),
		Runtime:      lambdatypes.Runtime(runtime),
		Role:         aws.String(c.roleARN),
		Handler:      aws.String(handler),
		Code:         &lambdatypes.FunctionCode{ZipFile: zipBytes},
		Timeout:      aws.Int32(int32(spec.Timeout)),
		MemorySize:   aws.Int32(int32(spec.Memory)),
		Environment:  &lambdatypes.Environment{Variables: env},
		Publish:      true,
	})
	if err != nil {
		return "", c.classify(spec.Name, err)
	}

	return aws.ToString(out.Version), nil
}

// waitUpdated blocks until the function leaves the Pending/InProgress update
// state. Updating configuration while a code update is still in flight is
// rejected with a conflict.
func (c *AWSClient) waitUpdated(ctx context.Context, name string) error {
	client, ok := c.api.(*lambda.Client)
	if !ok {
		// Test doubles settle immediately.
		return nil
	}
	waiter := lambda.NewFunctionUpdatedV2Waiter(client)
	return waiter.Wait(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	}, updateWaitTimeout)
}

func (c *AWSClient) pointAlias(ctx context.Context, name, version string) error {
	_, err := c.api.GetAlias(ctx, &lambda.GetAliasInput{
		FunctionName: aws.String(name),
		Name:         aws.String(liveAlias),
	})
	switch {
	case err == nil:
		_, err = c.api.UpdateAlias(ctx, &lambda.UpdateAliasInput{
			FunctionName:    aws.String(name),
			Name:            aws.String(liveAlias),
			FunctionVersion: aws.String(version),
		})
	case isNotFound(err):
		_, err = c.api.CreateAlias(ctx, &lambda.CreateAliasInput{
			FunctionName:    aws.String(name),
			Name:            aws.String(liveAlias),
			FunctionVersion: aws.String(version),
		})
	}
	if err != nil {
		return c.classify(name, err)
	}
	return nil
}

// RestoreFunction implements Client by repointing the live alias at the
// previously published version. Lambda versions are immutable, so restoring
// never re-uploads code.
func (c *AWSClient) RestoreFunction(ctx context.Context, name, artifactRef string) (string, error) {
	c.log.WithFields(logrus.Fields{"function": name, "version": artifactRef}).Info("restoring function version")
	if err := c.pointAlias(ctx, name, artifactRef); err != nil {
		return "", err
	}
	return artifactRef, nil
}

// ListFunctions implements Client. The artifact reference for each function
// is the version its live alias points at, falling back to the unqualified
// version for functions deployed outside skylift.
func (c *AWSClient) ListFunctions(ctx context.Context) ([]Function, error) {
	var functions []Function
	var marker *string

	for {
		out, err := c.api.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, c.classify("", err)
		}

		for _, f := range out.Functions {
			name := aws.ToString(f.FunctionName)
			ref := aws.ToString(f.Version)

			alias, err := c.api.GetAlias(ctx, &lambda.GetAliasInput{
				FunctionName: aws.String(name),
				Name:         aws.String(liveAlias),
			})
			if err == nil {
				ref = aws.ToString(alias.FunctionVersion)
			} else if !isNotFound(err) {
				return nil, c.classify(name, err)
			}

			functions = append(functions, Function{Name: name, ArtifactRef: ref})
		}

		if out.NextMarker == nil {
			return functions, nil
		}
		marker = out.NextMarker
	}
}

// DeleteFunction implements Client.
func (c *AWSClient) DeleteFunction(ctx context.Context, name string) error {
	c.log.WithField("function", name).Info("deleting function")
	_, err := c.api.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return c.classify(name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *lambdatypes.ResourceNotFoundException
	return errors.As(err, &nf)
}

// classify maps Lambda API failures onto the provider error taxonomy.
func (c *AWSClient) classify(function string, err error) error {
	var tooMany *lambdatypes.TooManyRequestsException
	if errors.As(err, &tooMany) {
		return NewError(types.ProviderAWS, function, KindTransient, err)
	}

	var invalid *lambdatypes.InvalidParameterValueException
	if errors.As(err, &invalid) {
		return NewError(types.ProviderAWS, function, KindValidation, err)
	}
	var nf *lambdatypes.ResourceNotFoundException
	if errors.As(err, &nf) {
		return NewError(types.ProviderAWS, function, KindValidation, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied", "UnrecognizedClientException",
			"InvalidSignatureException", "ExpiredTokenException":
			return NewError(types.ProviderAWS, function, KindAuth, err)
		}
	}

	// Network failures, 5xx responses and anything unclassified.
	return NewError(types.ProviderAWS, function, KindTransient, err)
}
