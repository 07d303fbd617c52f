package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcolatosti/AWSAccountFactory/internal/models"
	"github.com/mcolatosti/AWSAccountFactory/internal/policy"
)

func planNames(plan []PlannedPolicy) []string {
	names := make([]string, 0, len(plan))
	for _, p := range plan {
		names = append(names, p.Account+":"+p.Target+"/"+p.Name)
	}
	return names
}

func countOf(values []string, want string) int {
	var n int
	for _, v := range values {
		if v == want {
			n++
		}
	}
	return n
}

func TestPlan_Spoke(t *testing.T) {
	h := newHarness()

	plan := Plan(h.params, h.settings, testAccount)
	assert.Equal(t, []string{
		iacAccount + ":s3_iac_payments/trust",
		iacAccount + ":s3_iac_payments/s3_iac_payments",
		iacAccount + ":ec2_iacbuild_core/ec2_iacbuild_payments",
		iacAccount + ":ec2_iacdeploy_core/ec2_iacdeploy_payments",
		testAccount + ":terraform_reader/trust",
		testAccount + ":terraform_reader/terraform_reader",
		testAccount + ":terraform_writer/trust",
		testAccount + ":terraform_writer/terraform_writer",
	}, planNames(plan))
}

func TestPlan_HubWithBucketPolicy(t *testing.T) {
	h := newHarness()
	h.params.Topology = models.TopologyHub
	h.params.AccountName = "core"
	h.settings.ManageBucketPolicy = true

	plan := Plan(h.params, h.settings, testAccount)
	names := planNames(plan)

	hubBucket := h.settings.BucketPrefix + "-iac-core"
	assert.Equal(t, iacAccount+":"+hubBucket+"/bucket-policy", names[0])
	assert.Contains(t, names, iacAccount+":ec2_iacbuild_core/trust")
	assert.Contains(t, names, iacAccount+":ec2_iacdeploy_core/ec2_iacdeploy_core")
	assert.Contains(t, names, iacAccount+":"+hubBucket+"/ALLOWIACROLEcore")

	// the agent roles keep their own policy; no grant overwrites it
	assert.Equal(t, 1, countOf(names, iacAccount+":ec2_iacbuild_core/ec2_iacbuild_core"))
	assert.Equal(t, 1, countOf(names, iacAccount+":ec2_iacdeploy_core/ec2_iacdeploy_core"))

	for _, p := range plan {
		if p.Target == hubBucket {
			assert.Equal(t, policy.KindResource, p.Kind)
		}
	}
}

func TestPlan_PassesGuardrails(t *testing.T) {
	validator, err := policy.NewValidator()
	require.NoError(t, err)

	for _, topology := range []models.Topology{models.TopologySpoke, models.TopologyHub} {
		t.Run(string(topology), func(t *testing.T) {
			h := newHarness()
			h.params.Topology = topology
			h.settings.ManageBucketPolicy = true

			for _, p := range Plan(h.params, h.settings, testAccount) {
				var trusted []string
				if p.Kind == policy.KindTrust {
					trusted = []string{h.params.IaCAccountID}
				}
				err := validator.Check(testContext(), p.Kind, p.Document, trusted...)
				assert.NoError(t, err, "%s/%s", p.Target, p.Name)
			}
		})
	}
}

// the inline policies a hub run writes are the identity documents of its plan
func TestPlan_MatchesCreateRun(t *testing.T) {
	h := newHarness()
	h.params.Topology = models.TopologyHub
	h.params.AccountName = "core"

	require.NoError(t, h.handle(t, "Create"))

	want := map[string][]string{}
	for _, p := range Plan(h.params, h.settings, testAccount) {
		if p.Kind == policy.KindIdentity {
			want[p.Account] = append(want[p.Account], p.Target+"/"+p.Name)
		}
	}

	assert.ElementsMatch(t, want[iacAccount], h.cloud.inline[iacAccount])
	assert.ElementsMatch(t, want[testAccount], h.cloud.inline[testAccount])
}
