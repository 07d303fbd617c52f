package services

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
	"github.com/mcolatosti/AWSAccountFactory/internal/errors"
	"github.com/mcolatosti/AWSAccountFactory/internal/models"
)

const settingsSection = "General"

// Settings is the [General] section of bootstrapper.ini
type Settings struct {
	AccessToBilling       string `ini:"access_to_billing"`
	BaselineTemplate      string `ini:"baselinetemplate"`
	TestAccountID         string `ini:"testaccountid"`
	TestMode              bool   `ini:"testmode"`
	BucketPrefix          string `ini:"bucket_prefix"`
	ProviderTemplate      string `ini:"provider_template"`
	VPCCleanupConcurrency int    `ini:"vpc_cleanup_concurrency"`
	ManageBucketPolicy    bool   `ini:"manage_bucket_policy"`
	SCPID                 string `ini:"scp_id"`
}

// DefaultSettings returns the values used for keys the file leaves out
func DefaultSettings() Settings {
	return Settings{
		AccessToBilling:       "ALLOW",
		BucketPrefix:          constants.DefaultBucketPrefix,
		VPCCleanupConcurrency: 1,
	}
}

// LoadSettings reads settings from source, a file name or raw []byte. A
// missing file yields the defaults.
func LoadSettings(source interface{}) (*Settings, error) {
	file, err := ini.LooseLoad(source)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := DefaultSettings()
	if err := file.Section(settingsSection).MapTo(&settings); err != nil {
		return nil, fmt.Errorf("failed to map settings section [%s]: %w", settingsSection, err)
	}

	if settings.AccessToBilling == "" {
		settings.AccessToBilling = "ALLOW"
	}
	if settings.BucketPrefix == "" {
		settings.BucketPrefix = constants.DefaultBucketPrefix
	}
	if settings.VPCCleanupConcurrency < 1 {
		settings.VPCCleanupConcurrency = 1
	}
	return &settings, nil
}

// LoadAccountParams builds the account inputs from environment lookups and
// settings.
func LoadAccountParams(getenv func(string) string, settings *Settings) models.AccountParams {
	if settings == nil {
		defaults := DefaultSettings()
		settings = &defaults
	}

	return models.AccountParams{
		AccountName:      strings.TrimSpace(getenv("accountname")),
		AccountEmail:     strings.TrimSpace(getenv("accountemail")),
		ParentHub:        strings.TrimSpace(getenv("parenthub")),
		Topology:         models.ParseTopology(getenv("ishub")),
		AccountRole:      constants.AccountAccessRoleName,
		AccessToBilling:  settings.AccessToBilling,
		IaCAccountID:     strings.TrimSpace(getenv("iac_account_id")),
		StackName:        getenv("stackname"),
		StackRegion:      strings.TrimSpace(getenv("stackregion")),
		SourceBucket:     getenv("sourcebucket"),
		RemoveDefaultVPC: getenv("removedefaultvpc") != "false",
		TestMode:         settings.TestMode,
		TestAccountID:    strings.TrimSpace(settings.TestAccountID),
	}
}

// ValidateAccountParams reports the first missing input a Create needs
func ValidateAccountParams(p models.AccountParams) error {
	type param struct {
		name  string
		value string
	}
	required := []param{
		{"accountname", p.AccountName},
		{"parenthub", p.ParentHub},
		{"iac_account_id", p.IaCAccountID},
		{"stackregion", p.StackRegion},
	}
	if p.TestMode {
		required = append(required, param{"testaccountid", p.TestAccountID})
	} else {
		required = append(required, param{"accountemail", p.AccountEmail})
	}

	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", errors.ErrMissingParameter, r.name)
		}
	}
	return nil
}
