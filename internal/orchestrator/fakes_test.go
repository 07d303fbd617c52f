package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/mcolatosti/AWSAccountFactory/internal/dao/accountdao"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
	"github.com/mcolatosti/AWSAccountFactory/internal/services"
)

const managementAccount = "management"

// fakeOrganizations records organization calls
type fakeOrganizations struct {
	rootErr      error
	createRecord *models.AccountRecord
	createErr    error

	rootCalls   int
	createCalls []services.CreateAccountInput
	ous         []string
	moves       []string
	attached    []string
}

func (f *fakeOrganizations) RootID(ctx context.Context) (string, error) {
	f.rootCalls++
	if f.rootErr != nil {
		return "", f.rootErr
	}
	return "r-root", nil
}

func (f *fakeOrganizations) CreateAccount(ctx context.Context, input services.CreateAccountInput) (*models.AccountRecord, error) {
	f.createCalls = append(f.createCalls, input)
	return f.createRecord, f.createErr
}

func (f *fakeOrganizations) EnsureOrganizationalUnit(ctx context.Context, parentID, name string) (string, error) {
	f.ous = append(f.ous, parentID+"/"+name)
	return "ou-" + name, nil
}

func (f *fakeOrganizations) MoveAccount(ctx context.Context, accountID, sourceID, destinationID string) error {
	f.moves = append(f.moves, fmt.Sprintf("%s:%s->%s", accountID, sourceID, destinationID))
	return nil
}

func (f *fakeOrganizations) AttachPolicy(ctx context.Context, policyID, targetID string) error {
	f.attached = append(f.attached, policyID+":"+targetID)
	return nil
}

// fakeBroker hands out credentials for any account
type fakeBroker struct {
	assumed []string
}

func (f *fakeBroker) Assume(ctx context.Context, accountID, roleName string) (*services.Credentials, error) {
	f.assumed = append(f.assumed, accountID+"/"+roleName)
	return &services.Credentials{
		AccessKeyID:     "AKID" + accountID,
		SecretAccessKey: "secret",
		SessionToken:    "token",
		AccountID:       accountID,
		RoleName:        roleName,
	}, nil
}

type fakeFunction struct {
	invoked []models.ProvisioningRequest
}

func (f *fakeFunction) SelfInvoke(ctx context.Context, req models.ProvisioningRequest) error {
	f.invoked = append(f.invoked, req)
	return nil
}

// fakeReporter records callbacks instead of sending them
type fakeReporter struct {
	err error

	successes []map[string]interface{}
	failures  []string
	deletes   int
}

func (f *fakeReporter) Success(ctx context.Context, req models.ProvisioningRequest, data map[string]interface{}) error {
	f.successes = append(f.successes, data)
	return f.err
}

func (f *fakeReporter) Failure(ctx context.Context, req models.ProvisioningRequest, reason string) error {
	f.failures = append(f.failures, reason)
	return f.err
}

func (f *fakeReporter) DeleteAcknowledged(ctx context.Context, req models.ProvisioningRequest) error {
	f.deletes++
	return f.err
}

func (f *fakeReporter) calls() int {
	return len(f.successes) + len(f.failures) + f.deletes
}

// fakeLedger keeps run records in memory
type fakeLedger struct {
	records map[accountdao.ID]*accountdao.Record
	updates int
}

func (f *fakeLedger) Create(ctx context.Context, input accountdao.CreateInput) (accountdao.Record, error) {
	record := accountdao.Record{
		PK:        accountdao.NewPK(input.AccountName),
		SK:        input.SK,
		Email:     input.Email,
		ParentHub: input.ParentHub,
		Topology:  input.Topology,
		RequestID: input.RequestID,
		StackID:   input.StackID,
		Status:    accountdao.StatusInProgress,
	}
	if f.records == nil {
		f.records = map[accountdao.ID]*accountdao.Record{}
	}
	f.records[record.GetID()] = &record
	return record, nil
}

func (f *fakeLedger) UpdateStatus(ctx context.Context, input accountdao.UpdateInput) error {
	f.updates++
	record, ok := f.records[input.ID]
	if !ok {
		return fmt.Errorf("run %s not found", input.ID)
	}
	if input.Status != nil {
		record.Status = *input.Status
	}
	if input.AccountID != nil {
		record.AccountID = *input.AccountID
	}
	if input.OUID != nil {
		record.OUID = *input.OUID
	}
	if input.FailureReason != nil {
		record.FailureReason = *input.FailureReason
	}
	if input.DegradedRoles != nil {
		record.DegradedRoles = input.DegradedRoles
	}
	return nil
}

// fakeCloud is an in-memory IAM, S3 and EC2 shared by every account. Clients
// it returns are bound to the account of the credentials they were made with.
type fakeCloud struct {
	mu sync.Mutex

	failRoles map[string]bool
	regions   []string

	roles     map[string][]string // account -> role names
	inline    map[string][]string // account -> role/policy
	attached  map[string][]string // account -> role/policy arn
	buckets   map[string][]string // account -> bucket names
	policies  map[string]string   // bucket -> policy
	objects   map[string][]byte   // bucket/key -> body
	vpcChecks map[string][]string // account -> regions
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		failRoles: map[string]bool{},
		regions:   []string{"us-east-1", "us-west-2"},
		roles:     map[string][]string{},
		inline:    map[string][]string{},
		attached:  map[string][]string{},
		buckets:   map[string][]string{},
		policies:  map[string]string{},
		objects:   map[string][]byte{},
		vpcChecks: map[string][]string{},
	}
}

func accountOf(creds *services.Credentials) string {
	if creds == nil {
		return managementAccount
	}
	return creds.AccountID
}

func (c *fakeCloud) IAM(creds *services.Credentials) services.IAMClient {
	return &fakeIAM{cloud: c, account: accountOf(creds)}
}

func (c *fakeCloud) S3(creds *services.Credentials) services.S3Client {
	return &fakeS3{cloud: c, account: accountOf(creds)}
}

func (c *fakeCloud) EC2(creds *services.Credentials, region string) services.EC2Client {
	return &fakeEC2{cloud: c, account: accountOf(creds), region: region}
}

// touched returns every account that saw an IAM, S3 or EC2 call
func (c *fakeCloud) touched() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := map[string]bool{}
	for _, m := range []map[string][]string{c.roles, c.inline, c.attached, c.buckets, c.vpcChecks} {
		for account := range m {
			seen[account] = true
		}
	}
	var accounts []string
	for account := range seen {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

type fakeIAM struct {
	cloud   *fakeCloud
	account string
}

func (f *fakeIAM) CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	name := aws.ToString(params.RoleName)
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()

	if f.cloud.failRoles[name] {
		return nil, &smithy.GenericAPIError{Code: "ServiceFailure", Message: "try again"}
	}
	f.cloud.roles[f.account] = append(f.cloud.roles[f.account], name)
	return &iam.CreateRoleOutput{
		Role: &iamtypes.Role{RoleName: params.RoleName, Arn: aws.String(policy.RoleARN(f.account, name))},
	}, nil
}

func (f *fakeIAM) GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	return nil, &iamtypes.NoSuchEntityException{}
}

func (f *fakeIAM) UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	return &iam.UpdateAssumeRolePolicyOutput{}, nil
}

func (f *fakeIAM) PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	f.cloud.inline[f.account] = append(f.cloud.inline[f.account], aws.ToString(params.RoleName)+"/"+aws.ToString(params.PolicyName))
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *fakeIAM) AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	f.cloud.attached[f.account] = append(f.cloud.attached[f.account], aws.ToString(params.RoleName)+"/"+aws.ToString(params.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) CreateInstanceProfile(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	return &iam.CreateInstanceProfileOutput{}, nil
}

func (f *fakeIAM) AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	return &iam.AddRoleToInstanceProfileOutput{}, nil
}

type fakeS3 struct {
	cloud   *fakeCloud
	account string
}

func (f *fakeS3) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	f.cloud.buckets[f.account] = append(f.cloud.buckets[f.account], aws.ToString(params.Bucket))
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) GetBucketPolicy(ctx context.Context, params *s3.GetBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	doc, ok := f.cloud.policies[aws.ToString(params.Bucket)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucketPolicy"}
	}
	return &s3.GetBucketPolicyOutput{Policy: aws.String(doc)}, nil
}

func (f *fakeS3) PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	f.cloud.policies[aws.ToString(params.Bucket)] = aws.ToString(params.Policy)
	return &s3.PutBucketPolicyOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	body, ok := f.cloud.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	f.cloud.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

// fakeEC2 reports no default VPC in any region
type fakeEC2 struct {
	cloud   *fakeCloud
	account string
	region  string
}

func (f *fakeEC2) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	out := &ec2.DescribeRegionsOutput{}
	for _, region := range f.cloud.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(region)})
	}
	return out, nil
}

func (f *fakeEC2) DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	f.cloud.mu.Lock()
	defer f.cloud.mu.Unlock()
	f.cloud.vpcChecks[f.account] = append(f.cloud.vpcChecks[f.account], f.region)
	return &ec2.DescribeVpcsOutput{}, nil
}

func (f *fakeEC2) DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	return &ec2.DescribeSubnetsOutput{}, nil
}

func (f *fakeEC2) DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	return nil, fmt.Errorf("unexpected delete")
}

func (f *fakeEC2) DescribeInternetGateways(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error) {
	return &ec2.DescribeInternetGatewaysOutput{}, nil
}

func (f *fakeEC2) DetachInternetGateway(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (f *fakeEC2) DeleteInternetGateway(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (f *fakeEC2) DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	return nil, fmt.Errorf("unexpected delete")
}
