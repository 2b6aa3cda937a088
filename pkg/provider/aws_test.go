package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// The V2 waiter polls GetFunction, not GetFunctionConfiguration; pin the
// input type waitUpdated must construct.
var _ func(context.Context, *lambda.GetFunctionInput, time.Duration, ...func(*lambda.FunctionUpdatedV2WaiterOptions)) error = (&lambda.FunctionUpdatedV2Waiter{}).Wait

// fakeLambda is an in-memory lambdaAPI double tracking versions and aliases.
type fakeLambda struct {
	functions map[string]int // name -> latest published version
	aliases   map[string]string
	calls     []string

	getFunctionErr error
	updateCodeErr  error
	createErr      error
}

func newFakeLambda() *fakeLambda {
	return &fakeLambda{
		functions: make(map[string]int),
		aliases:   make(map[string]string),
	}
}

func notFoundErr() error {
	return &lambdatypes.ResourceNotFoundException{Message: aws.String("not found")}
}

func (f *fakeLambda) GetFunction(ctx context.Context, in *lambda.GetFunctionInput, opts ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	f.calls = append(f.calls, "GetFunction")
	if f.getFunctionErr != nil {
		return nil, f.getFunctionErr
	}
	if _, ok := f.functions[aws.ToString(in.FunctionName)]; !ok {
		return nil, notFoundErr()
	}
	return &lambda.GetFunctionOutput{}, nil
}

func (f *fakeLambda) CreateFunction(ctx context.Context, in *lambda.CreateFunctionInput, opts ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	f.calls = append(f.calls, "CreateFunction")
	if f.createErr != nil {
		return nil, f.createErr
	}
	name := aws.ToString(in.FunctionName)
	f.functions[name] = 1
	return &lambda.CreateFunctionOutput{Version: aws.String("1")}, nil
}

func (f *fakeLambda) UpdateFunctionCode(ctx context.Context, in *lambda.UpdateFunctionCodeInput, opts ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error) {
	f.calls = append(f.calls, "UpdateFunctionCode")
	if f.updateCodeErr != nil {
		return nil, f.updateCodeErr
	}
	name := aws.ToString(in.FunctionName)
	f.functions[name]++
	return &lambda.UpdateFunctionCodeOutput{Version: aws.String(strconv.Itoa(f.functions[name]))}, nil
}

func (f *fakeLambda) UpdateFunctionConfiguration(ctx context.Context, in *lambda.UpdateFunctionConfigurationInput, opts ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	f.calls = append(f.calls, "UpdateFunctionConfiguration")
	return &lambda.UpdateFunctionConfigurationOutput{}, nil
}

func (f *fakeLambda) ListFunctions(ctx context.Context, in *lambda.ListFunctionsInput, opts ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	f.calls = append(f.calls, "ListFunctions")
	out := &lambda.ListFunctionsOutput{}
	for name, version := range f.functions {
		out.Functions = append(out.Functions, lambdatypes.FunctionConfiguration{
			FunctionName: aws.String(name),
			Version:      aws.String(strconv.Itoa(version)),
		})
	}
	return out, nil
}

func (f *fakeLambda) DeleteFunction(ctx context.Context, in *lambda.DeleteFunctionInput, opts ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	f.calls = append(f.calls, "DeleteFunction")
	name := aws.ToString(in.FunctionName)
	if _, ok := f.functions[name]; !ok {
		return nil, notFoundErr()
	}
	delete(f.functions, name)
	delete(f.aliases, name)
	return &lambda.DeleteFunctionOutput{}, nil
}

func (f *fakeLambda) GetAlias(ctx context.Context, in *lambda.GetAliasInput, opts ...func(*lambda.Options)) (*lambda.GetAliasOutput, error) {
	f.calls = append(f.calls, "GetAlias")
	version, ok := f.aliases[aws.ToString(in.FunctionName)]
	if !ok {
		return nil, notFoundErr()
	}
	return &lambda.GetAliasOutput{FunctionVersion: aws.String(version)}, nil
}

func (f *fakeLambda) CreateAlias(ctx context.Context, in *lambda.CreateAliasInput, opts ...func(*lambda.Options)) (*lambda.CreateAliasOutput, error) {
	f.calls = append(f.calls, "CreateAlias")
	f.aliases[aws.ToString(in.FunctionName)] = aws.ToString(in.FunctionVersion)
	return &lambda.CreateAliasOutput{}, nil
}

func (f *fakeLambda) UpdateAlias(ctx context.Context, in *lambda.UpdateAliasInput, opts ...func(*lambda.Options)) (*lambda.UpdateAliasOutput, error) {
	f.calls = append(f.calls, "UpdateAlias")
	f.aliases[aws.ToString(in.FunctionName)] = aws.ToString(in.FunctionVersion)
	return &lambda.UpdateAliasOutput{}, nil
}

func newAWSTestClient(api lambdaAPI, roleARN string) *AWSClient {
	return &AWSClient{
		api:     api,
		roleARN: roleARN,
		log:     logrus.WithField("provider", types.ProviderAWS),
	}
}

func TestAWSDeployCreatesNewFunction(t *testing.T) {
	fake := newFakeLambda()
	client := newAWSTestClient(fake, "arn:aws:iam::123:role/deployer")
	spec := testFunctionSpec("api-handler", writeHandlerSource(t))

	ref, err := client.DeployFunction(context.Background(), spec, map[string]string{"K": "v"})
	require.NoError(t, err)
	assert.Equal(t, "1", ref)
	assert.Equal(t, "1", fake.aliases["api-handler"])
	assert.Contains(t, fake.calls, "CreateFunction")
	assert.NotContains(t, fake.calls, "UpdateFunctionCode")
}

func TestAWSDeployUpdatesExistingFunction(t *testing.T) {
	fake := newFakeLambda()
	fake.functions["api-handler"] = 3
	fake.aliases["api-handler"] = "3"

	client := newAWSTestClient(fake, "")
	spec := testFunctionSpec("api-handler", writeHandlerSource(t))

	ref, err := client.DeployFunction(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.Equal(t, "4", ref)
	assert.Equal(t, "4", fake.aliases["api-handler"])
	assert.Contains(t, fake.calls, "UpdateFunctionCode")
	assert.Contains(t, fake.calls, "UpdateFunctionConfiguration")
	assert.NotContains(t, fake.calls, "CreateFunction")
}

func TestAWSCreateRequiresRoleARN(t *testing.T) {
	fake := newFakeLambda()
	client := newAWSTestClient(fake, "")
	spec := testFunctionSpec("api-handler", writeHandlerSource(t))

	_, err := client.DeployFunction(context.Background(), spec, nil)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindValidation, perr.Kind)
}

func TestAWSRestoreRepointsAliasWithoutUpload(t *testing.T) {
	fake := newFakeLambda()
	fake.functions["api-handler"] = 5
	fake.aliases["api-handler"] = "5"

	client := newAWSTestClient(fake, "")

	ref, err := client.RestoreFunction(context.Background(), "api-handler", "2")
	require.NoError(t, err)
	assert.Equal(t, "2", ref)
	assert.Equal(t, "2", fake.aliases["api-handler"])
	assert.NotContains(t, fake.calls, "UpdateFunctionCode")
	assert.NotContains(t, fake.calls, "CreateFunction")
}

func TestAWSListFunctionsPrefersAliasVersion(t *testing.T) {
	fake := newFakeLambda()
	fake.functions["api-handler"] = 7
	fake.aliases["api-handler"] = "4" // rolled back earlier
	fake.functions["worker"] = 2      // no alias, deployed out of band

	client := newAWSTestClient(fake, "")

	fns, err := client.ListFunctions(context.Background())
	require.NoError(t, err)
	require.Len(t, fns, 2)

	refs := make(map[string]string, len(fns))
	for _, fn := range fns {
		refs[fn.Name] = fn.ArtifactRef
	}
	assert.Equal(t, "4", refs["api-handler"])
	assert.Equal(t, "2", refs["worker"])
}

func TestAWSClassify(t *testing.T) {
	client := newAWSTestClient(newFakeLambda(), "")

	err := client.classify("f", &lambdatypes.TooManyRequestsException{Message: aws.String("slow down")})
	assert.True(t, IsRetryable(err))

	err = client.classify("f", &lambdatypes.InvalidParameterValueException{Message: aws.String("bad role")})
	assert.False(t, IsRetryable(err))

	err = client.classify("f", fmt.Errorf("connection reset"))
	assert.True(t, IsRetryable(err))
}

func TestNewAWSClientRequiresCredentials(t *testing.T) {
	_, err := NewAWSClient(context.Background(), AWSOptions{})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindAuth, perr.Kind)
}
