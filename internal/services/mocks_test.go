package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/lockdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
)

// Mock implementations

type mockSTSClient struct {
	assumeRoleFunc func(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

func (m *mockSTSClient) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	if m.assumeRoleFunc != nil {
		return m.assumeRoleFunc(ctx, params, optFns...)
	}
	return nil, errors.New("assumeRoleFunc not set")
}

type mockOrganizationsClient struct {
	listRootsFunc                        func(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error)
	createAccountFunc                    func(ctx context.Context, params *organizations.CreateAccountInput, optFns ...func(*organizations.Options)) (*organizations.CreateAccountOutput, error)
	describeCreateAccountStatusFunc      func(ctx context.Context, params *organizations.DescribeCreateAccountStatusInput, optFns ...func(*organizations.Options)) (*organizations.DescribeCreateAccountStatusOutput, error)
	listOrganizationalUnitsForParentFunc func(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error)
	createOrganizationalUnitFunc         func(ctx context.Context, params *organizations.CreateOrganizationalUnitInput, optFns ...func(*organizations.Options)) (*organizations.CreateOrganizationalUnitOutput, error)
	moveAccountFunc                      func(ctx context.Context, params *organizations.MoveAccountInput, optFns ...func(*organizations.Options)) (*organizations.MoveAccountOutput, error)
	attachPolicyFunc                     func(ctx context.Context, params *organizations.AttachPolicyInput, optFns ...func(*organizations.Options)) (*organizations.AttachPolicyOutput, error)
}

func (m *mockOrganizationsClient) ListRoots(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error) {
	if m.listRootsFunc != nil {
		return m.listRootsFunc(ctx, params, optFns...)
	}
	return nil, errors.New("listRootsFunc not set")
}

func (m *mockOrganizationsClient) CreateAccount(ctx context.Context, params *organizations.CreateAccountInput, optFns ...func(*organizations.Options)) (*organizations.CreateAccountOutput, error) {
	if m.createAccountFunc != nil {
		return m.createAccountFunc(ctx, params, optFns...)
	}
	return nil, errors.New("createAccountFunc not set")
}

func (m *mockOrganizationsClient) DescribeCreateAccountStatus(ctx context.Context, params *organizations.DescribeCreateAccountStatusInput, optFns ...func(*organizations.Options)) (*organizations.DescribeCreateAccountStatusOutput, error) {
	if m.describeCreateAccountStatusFunc != nil {
		return m.describeCreateAccountStatusFunc(ctx, params, optFns...)
	}
	return nil, errors.New("describeCreateAccountStatusFunc not set")
}

func (m *mockOrganizationsClient) ListOrganizationalUnitsForParent(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error) {
	if m.listOrganizationalUnitsForParentFunc != nil {
		return m.listOrganizationalUnitsForParentFunc(ctx, params, optFns...)
	}
	return nil, errors.New("listOrganizationalUnitsForParentFunc not set")
}

func (m *mockOrganizationsClient) CreateOrganizationalUnit(ctx context.Context, params *organizations.CreateOrganizationalUnitInput, optFns ...func(*organizations.Options)) (*organizations.CreateOrganizationalUnitOutput, error) {
	if m.createOrganizationalUnitFunc != nil {
		return m.createOrganizationalUnitFunc(ctx, params, optFns...)
	}
	return nil, errors.New("createOrganizationalUnitFunc not set")
}

func (m *mockOrganizationsClient) MoveAccount(ctx context.Context, params *organizations.MoveAccountInput, optFns ...func(*organizations.Options)) (*organizations.MoveAccountOutput, error) {
	if m.moveAccountFunc != nil {
		return m.moveAccountFunc(ctx, params, optFns...)
	}
	return nil, errors.New("moveAccountFunc not set")
}

func (m *mockOrganizationsClient) AttachPolicy(ctx context.Context, params *organizations.AttachPolicyInput, optFns ...func(*organizations.Options)) (*organizations.AttachPolicyOutput, error) {
	if m.attachPolicyFunc != nil {
		return m.attachPolicyFunc(ctx, params, optFns...)
	}
	return nil, errors.New("attachPolicyFunc not set")
}

type mockIAMClient struct {
	createRoleFunc               func(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	getRoleFunc                  func(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	updateAssumeRolePolicyFunc   func(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	putRolePolicyFunc            func(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
	attachRolePolicyFunc         func(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	createInstanceProfileFunc    func(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error)
	addRoleToInstanceProfileFunc func(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error)
}

func (m *mockIAMClient) CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if m.createRoleFunc != nil {
		return m.createRoleFunc(ctx, params, optFns...)
	}
	return nil, errors.New("createRoleFunc not set")
}

func (m *mockIAMClient) GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if m.getRoleFunc != nil {
		return m.getRoleFunc(ctx, params, optFns...)
	}
	return nil, errors.New("getRoleFunc not set")
}

func (m *mockIAMClient) UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	if m.updateAssumeRolePolicyFunc != nil {
		return m.updateAssumeRolePolicyFunc(ctx, params, optFns...)
	}
	return nil, errors.New("updateAssumeRolePolicyFunc not set")
}

func (m *mockIAMClient) PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	if m.putRolePolicyFunc != nil {
		return m.putRolePolicyFunc(ctx, params, optFns...)
	}
	return nil, errors.New("putRolePolicyFunc not set")
}

func (m *mockIAMClient) AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	if m.attachRolePolicyFunc != nil {
		return m.attachRolePolicyFunc(ctx, params, optFns...)
	}
	return nil, errors.New("attachRolePolicyFunc not set")
}

func (m *mockIAMClient) CreateInstanceProfile(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	if m.createInstanceProfileFunc != nil {
		return m.createInstanceProfileFunc(ctx, params, optFns...)
	}
	return nil, errors.New("createInstanceProfileFunc not set")
}

func (m *mockIAMClient) AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	if m.addRoleToInstanceProfileFunc != nil {
		return m.addRoleToInstanceProfileFunc(ctx, params, optFns...)
	}
	return nil, errors.New("addRoleToInstanceProfileFunc not set")
}

type mockS3Client struct {
	createBucketFunc    func(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	getBucketPolicyFunc func(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error)
	putBucketPolicyFunc func(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	getObjectFunc       func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	putObjectFunc       func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if m.createBucketFunc != nil {
		return m.createBucketFunc(ctx, params, optFns...)
	}
	return nil, errors.New("createBucketFunc not set")
}

func (m *mockS3Client) GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	if m.getBucketPolicyFunc != nil {
		return m.getBucketPolicyFunc(ctx, params, optFns...)
	}
	return nil, errors.New("getBucketPolicyFunc not set")
}

func (m *mockS3Client) PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	if m.putBucketPolicyFunc != nil {
		return m.putBucketPolicyFunc(ctx, params, optFns...)
	}
	return nil, errors.New("putBucketPolicyFunc not set")
}

func (m *mockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, params, optFns...)
	}
	return nil, errors.New("getObjectFunc not set")
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params, optFns...)
	}
	return nil, errors.New("putObjectFunc not set")
}

type mockEC2Client struct {
	describeRegionsFunc          func(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	describeVpcsFunc             func(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	describeSubnetsFunc          func(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	deleteSubnetFunc             func(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)
	describeInternetGatewaysFunc func(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error)
	detachInternetGatewayFunc    func(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error)
	deleteInternetGatewayFunc    func(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error)
	deleteVpcFunc                func(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
}

func (m *mockEC2Client) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	if m.describeRegionsFunc != nil {
		return m.describeRegionsFunc(ctx, params, optFns...)
	}
	return nil, errors.New("describeRegionsFunc not set")
}

func (m *mockEC2Client) DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	if m.describeVpcsFunc != nil {
		return m.describeVpcsFunc(ctx, params, optFns...)
	}
	return nil, errors.New("describeVpcsFunc not set")
}

func (m *mockEC2Client) DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	if m.describeSubnetsFunc != nil {
		return m.describeSubnetsFunc(ctx, params, optFns...)
	}
	return &ec2.DescribeSubnetsOutput{}, nil
}

func (m *mockEC2Client) DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	if m.deleteSubnetFunc != nil {
		return m.deleteSubnetFunc(ctx, params, optFns...)
	}
	return &ec2.DeleteSubnetOutput{}, nil
}

func (m *mockEC2Client) DescribeInternetGateways(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	if m.describeInternetGatewaysFunc != nil {
		return m.describeInternetGatewaysFunc(ctx, params, optFns...)
	}
	return &ec2.DescribeInternetGatewaysOutput{}, nil
}

func (m *mockEC2Client) DetachInternetGateway(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	if m.detachInternetGatewayFunc != nil {
		return m.detachInternetGatewayFunc(ctx, params, optFns...)
	}
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (m *mockEC2Client) DeleteInternetGateway(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	if m.deleteInternetGatewayFunc != nil {
		return m.deleteInternetGatewayFunc(ctx, params, optFns...)
	}
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (m *mockEC2Client) DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	if m.deleteVpcFunc != nil {
		return m.deleteVpcFunc(ctx, params, optFns...)
	}
	return &ec2.DeleteVpcOutput{}, nil
}

type mockLambdaClient struct {
	invokeFunc         func(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
	deleteFunctionFunc func(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

func (m *mockLambdaClient) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, params, optFns...)
	}
	return nil, errors.New("invokeFunc not set")
}

func (m *mockLambdaClient) DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	if m.deleteFunctionFunc != nil {
		return m.deleteFunctionFunc(ctx, params, optFns...)
	}
	return nil, errors.New("deleteFunctionFunc not set")
}

type mockSSMClient struct {
	getParameterFunc        func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	getParametersByPathFunc func(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if m.getParameterFunc != nil {
		return m.getParameterFunc(ctx, params, optFns...)
	}
	return nil, errors.New("getParameterFunc not set")
}

func (m *mockSSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	if m.getParametersByPathFunc != nil {
		return m.getParametersByPathFunc(ctx, params, optFns...)
	}
	return nil, errors.New("getParametersByPathFunc not set")
}

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

type mockLocker struct {
	acquireFunc func(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error)
	releaseFunc func(ctx context.Context, input lockdao.ReleaseInput) error
}

func (m *mockLocker) Acquire(ctx context.Context, input lockdao.AcquireInput) (*lockdao.Record, bool, error) {
	if m.acquireFunc != nil {
		return m.acquireFunc(ctx, input)
	}
	return nil, false, errors.New("acquireFunc not set")
}

func (m *mockLocker) Release(ctx context.Context, input lockdao.ReleaseInput) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, input)
	}
	return errors.New("releaseFunc not set")
}

type mockChecker struct {
	checkFunc func(ctx context.Context, kind policy.Kind, doc policy.Document, trustedAccounts ...string) error
}

func (m *mockChecker) Check(ctx context.Context, kind policy.Kind, doc policy.Document, trustedAccounts ...string) error {
	return m.checkFunc(ctx, kind, doc, trustedAccounts...)
}

type mockSelfDeleter struct {
	calls int
	err   error
}

func (m *mockSelfDeleter) SelfDelete(ctx context.Context) error {
	m.calls++
	return m.err
}

// mockAPIError is a minimal smithy.APIError
type mockAPIError struct {
	code string
}

func (e *mockAPIError) Error() string                 { return e.code }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.code }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// Helper to create a test context with logger
func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

// testPolicies keeps production attempt limits without sleeping
func testPolicies() RetryPolicies {
	return DefaultRetryPolicies().WithoutDelay()
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}
}
