// Package provider renders the terraform AWS provider files that hub build
// and deploy agents use to reach a member account.
package provider

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/mcolatosti/AWSAccountFactory/internal/constants"
)

//go:embed templates/awsprovider.tf.tmpl
var defaultTemplate string

// Params are the values substituted into a provider template
type Params struct {
	IaCAccountID string
	AccountName  string
	Region       string
	RoleARN      string
	DeployType   string
}

func (p Params) validate() error {
	switch {
	case p.AccountName == "":
		return fmt.Errorf("provider params: account name required")
	case p.RoleARN == "":
		return fmt.Errorf("provider params: role arn required")
	case p.DeployType == "":
		return fmt.Errorf("provider params: deploy type required")
	}
	return nil
}

// legacyPlaceholder matches a single-brace field of a brace format template.
// Go template actions always open with a doubled brace and never match.
var legacyPlaceholder = regexp.MustCompile(`(?:^|[^{])\{(iac_account_id|accountname|region|rolearn|deploytype)\}`)

// Renderer renders provider files from a template. Templates use Go
// text/template syntax ({{.AccountName}}) unless they carry a brace format
// field such as {accountname}; those follow brace format rules where {{ and
// }} stand for literal braces.
type Renderer struct {
	source string
	tmpl   *template.Template
}

// NewRenderer parses source, falling back to the embedded default when empty
func NewRenderer(source string) (*Renderer, error) {
	if strings.TrimSpace(source) == "" {
		source = defaultTemplate
	}

	r := &Renderer{source: source}
	if IsLegacyTemplate(source) {
		if _, err := expandLegacy(source, Params{}.fields()); err != nil {
			return nil, fmt.Errorf("failed to parse provider template: %w", err)
		}
		return r, nil
	}

	tmpl, err := template.New("provider").Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider template: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// IsLegacyTemplate reports whether source is a brace format template
func IsLegacyTemplate(source string) bool {
	return legacyPlaceholder.MatchString(source)
}

func (p Params) fields() map[string]string {
	return map[string]string{
		"iac_account_id": p.IaCAccountID,
		"accountname":    p.AccountName,
		"region":         p.Region,
		"rolearn":        p.RoleARN,
		"deploytype":     p.DeployType,
	}
}

// expandLegacy substitutes {field} and unescapes {{ and }}
func expandLegacy(source string, fields map[string]string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(source))

	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == '{' && i+1 < len(source) && source[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(source) && source[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(source[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed field at offset %d", i)
			}
			name := source[i+1 : i+1+end]
			value, ok := fields[name]
			if !ok {
				return "", fmt.Errorf("unknown field {%s}", name)
			}
			sb.WriteString(value)
			i += end + 1
		case c == '}':
			return "", fmt.Errorf("single '}' at offset %d", i)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}

// MustDefaultRenderer returns a renderer for the embedded template
func MustDefaultRenderer() *Renderer {
	r, err := NewRenderer("")
	if err != nil {
		panic(err)
	}
	return r
}

// Render produces the provider file for p
func (r *Renderer) Render(p Params) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if r.tmpl == nil {
		out, err := expandLegacy(r.source, p.fields())
		if err != nil {
			return nil, fmt.Errorf("failed to render provider template: %w", err)
		}
		return []byte(out), nil
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("failed to render provider template: %w", err)
	}
	return buf.Bytes(), nil
}

// BucketName returns the IaC bucket of a hub: {prefix}-iac-{hub}
func BucketName(prefix, hub string) string {
	if prefix == "" {
		prefix = constants.DefaultBucketPrefix
	}
	return prefix + constants.BucketNameSeparator + hub
}

// ObjectKey returns providers/{name}/tf_awsprovider-{name}_{deployType}.tf
func ObjectKey(accountName, deployType string) string {
	return fmt.Sprintf("providers/%s/tf_awsprovider-%s_%s.tf", accountName, accountName, deployType)
}
