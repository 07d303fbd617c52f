package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/savaki/gox/slicex"

	"github.com/mcolatosti/AWSAccountFactory/internal/retry"
)

// RegionCleanup is the outcome of removing the default VPC of one region
type RegionCleanup struct {
	Region string `json:"region"`
	VPCID  string `json:"vpc_id,omitempty"`
	Err    error  `json:"-"`
}

// NetworkService removes the default network of a member account
type NetworkService struct {
	clients       func(region string) EC2Client
	concurrency   int
	gatewayDetach time.Duration
}

// NewNetworkService creates a NetworkService. clients returns an EC2 client
// for a region; "" means the client's default region.
func NewNetworkService(clients func(region string) EC2Client, concurrency int, policies RetryPolicies) *NetworkService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &NetworkService{
		clients:       clients,
		concurrency:   concurrency,
		gatewayDetach: policies.GatewayDetach,
	}
}

// Regions lists the regions enabled for the account
func (s *NetworkService) Regions(ctx context.Context) ([]string, error) {
	out, err := s.clients("").DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	return regions, nil
}

// PurgeDefaultVPCs removes the default VPC in every region. Failures are
// reported per region and never abort the other regions.
func (s *NetworkService) PurgeDefaultVPCs(ctx context.Context) ([]RegionCleanup, error) {
	logger := zerolog.Ctx(ctx)

	regions, err := s.Regions(ctx)
	if err != nil {
		return nil, err
	}

	callback := func(ctx context.Context, region string) (*RegionCleanup, error) {
		vpcID, err := s.DeleteDefaultVPC(ctx, region)
		return &RegionCleanup{Region: region, VPCID: vpcID, Err: err}, nil
	}
	cleanups, err := slicex.MapConcurrent(callback).
		Concurrency(s.concurrency).
		CollectErrors().
		DoValues(ctx, regions...)
	if err != nil {
		logger.Warn().Err(err).Msg("Default VPC cleanup reported errors")
	}

	results := make([]RegionCleanup, 0, len(regions))
	for i, cleanup := range cleanups {
		if cleanup == nil {
			results = append(results, RegionCleanup{Region: regions[i], Err: fmt.Errorf("no result for region %s", regions[i])})
			continue
		}
		if cleanup.Err != nil {
			logger.Warn().
				Err(cleanup.Err).
				Str("region", cleanup.Region).
				Msg("Failed to delete default VPC")
		}
		results = append(results, *cleanup)
	}
	return results, nil
}

// DeleteDefaultVPC deletes the default VPC of region together with its
// subnets and internet gateway. It returns the deleted VPC id, or "" when the
// region has no default VPC.
func (s *NetworkService) DeleteDefaultVPC(ctx context.Context, region string) (string, error) {
	logger := zerolog.Ctx(ctx).With().Str("region", region).Logger()
	client := s.clients(region)

	vpcs, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{
			{Name: aws.String("is-default"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe vpcs in %s: %w", region, err)
	}
	if len(vpcs.Vpcs) == 0 {
		logger.Info().Msg("No default VPC")
		return "", nil
	}

	vpcID := aws.ToString(vpcs.Vpcs[0].VpcId)
	logger = logger.With().Str("vpc_id", vpcID).Logger()

	subnets, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return vpcID, fmt.Errorf("failed to describe subnets of %s: %w", vpcID, err)
	}
	for _, subnet := range subnets.Subnets {
		if _, err := client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: subnet.SubnetId}); err != nil {
			return vpcID, fmt.Errorf("failed to delete subnet %s: %w", aws.ToString(subnet.SubnetId), err)
		}
	}

	gateways, err := client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []types.Filter{
			{Name: aws.String("attachment.vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return vpcID, fmt.Errorf("failed to describe internet gateways of %s: %w", vpcID, err)
	}
	for _, gateway := range gateways.InternetGateways {
		_, err := client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: gateway.InternetGatewayId,
			VpcId:             aws.String(vpcID),
		})
		if err != nil {
			return vpcID, fmt.Errorf("failed to detach internet gateway %s: %w", aws.ToString(gateway.InternetGatewayId), err)
		}
		if _, err := client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: gateway.InternetGatewayId}); err != nil {
			return vpcID, fmt.Errorf("failed to delete internet gateway %s: %w", aws.ToString(gateway.InternetGatewayId), err)
		}
	}

	if err := retry.Sleep(ctx, s.gatewayDetach); err != nil {
		return vpcID, err
	}

	if _, err := client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(vpcID)}); err != nil {
		return vpcID, fmt.Errorf("failed to delete vpc %s: %w", vpcID, err)
	}

	logger.Info().Msg("Deleted default VPC")
	return vpcID, nil
}
