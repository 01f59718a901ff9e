package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/ppiankov/govtrail/internal/policy"
)

// IAMAPI is the subset of the IAM client used by IAMCatalog.
type IAMAPI interface {
	iam.ListRolesAPIClient
	iam.ListAttachedRolePoliciesAPIClient
	iam.ListRolePoliciesAPIClient
	GetRole(ctx context.Context, in *iam.GetRoleInput, opts ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	GetPolicy(ctx context.Context, in *iam.GetPolicyInput, opts ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
	GetPolicyVersion(ctx context.Context, in *iam.GetPolicyVersionInput, opts ...func(*iam.Options)) (*iam.GetPolicyVersionOutput, error)
	GetRolePolicy(ctx context.Context, in *iam.GetRolePolicyInput, opts ...func(*iam.Options)) (*iam.GetRolePolicyOutput, error)
}

// Tag keys read from IAM roles.
const (
	TagEnvironment = "Environment"
	TagOwner       = "Owner"
	TagPurpose     = "Purpose"
)

// IAMCatalog lists IAM roles as principals.
type IAMCatalog struct {
	Client IAMAPI
	// PathPrefix restricts ListRoles, e.g. "/agents/".
	PathPrefix string
}

// NewIAM returns an IAM-backed catalog.
func NewIAM(client IAMAPI) *IAMCatalog {
	return &IAMCatalog{Client: client}
}

// Fetch lists every role, resolves tags, last use, and policy documents.
func (c *IAMCatalog) Fetch(ctx context.Context, envs []string) ([]Principal, error) {
	in := &iam.ListRolesInput{}
	if c.PathPrefix != "" {
		in.PathPrefix = aws.String(c.PathPrefix)
	}
	out := []Principal{}
	pages := iam.NewListRolesPaginator(c.Client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: list roles: %w", err)
		}
		for _, role := range page.Roles {
			p, err := c.principal(ctx, role)
			if err != nil {
				return nil, err
			}
			if matchEnv(envs, p.Environment) {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (c *IAMCatalog) principal(ctx context.Context, role iamtypes.Role) (Principal, error) {
	name := aws.ToString(role.RoleName)
	got, err := c.Client.GetRole(ctx, &iam.GetRoleInput{RoleName: role.RoleName})
	if err != nil {
		return Principal{}, fmt.Errorf("catalog: get role %s: %w", name, err)
	}
	full := got.Role
	if full == nil {
		full = &role
	}
	tags := make(map[string]string, len(full.Tags))
	for _, t := range full.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	p := Principal{
		ID:          aws.ToString(full.Arn),
		Name:        name,
		Type:        "role",
		Environment: strings.ToLower(tagValue(tags, TagEnvironment)),
		Owner:       tagValue(tags, TagOwner),
		Purpose:     tagValue(tags, TagPurpose),
		CreatedAt:   aws.ToTime(full.CreateDate),
		Tags:        tags,
	}
	if full.RoleLastUsed != nil && full.RoleLastUsed.LastUsedDate != nil {
		t := aws.ToTime(full.RoleLastUsed.LastUsedDate)
		p.LastUsedAt = &t
	}
	docs, err := c.documents(ctx, role.RoleName)
	if err != nil {
		return Principal{}, err
	}
	fp := SummarizeFootprint(docs)
	p.PolicySummary = &fp
	return p, nil
}

func tagValue(tags map[string]string, key string) string {
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (c *IAMCatalog) documents(ctx context.Context, roleName *string) ([]policy.Document, error) {
	var docs []policy.Document
	attached := iam.NewListAttachedRolePoliciesPaginator(c.Client, &iam.ListAttachedRolePoliciesInput{RoleName: roleName})
	for attached.HasMorePages() {
		page, err := attached.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: list attached policies for %s: %w", aws.ToString(roleName), err)
		}
		for _, ap := range page.AttachedPolicies {
			pol, err := c.Client.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: ap.PolicyArn})
			if err != nil {
				return nil, fmt.Errorf("catalog: get policy %s: %w", aws.ToString(ap.PolicyArn), err)
			}
			if pol.Policy == nil {
				continue
			}
			ver, err := c.Client.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
				PolicyArn: ap.PolicyArn,
				VersionId: pol.Policy.DefaultVersionId,
			})
			if err != nil {
				return nil, fmt.Errorf("catalog: get policy version %s: %w", aws.ToString(ap.PolicyArn), err)
			}
			if ver.PolicyVersion == nil {
				continue
			}
			d, err := decodeDocument(aws.ToString(ap.PolicyName), aws.ToString(ver.PolicyVersion.Document))
			if err != nil {
				return nil, err
			}
			docs = append(docs, d)
		}
	}
	inline := iam.NewListRolePoliciesPaginator(c.Client, &iam.ListRolePoliciesInput{RoleName: roleName})
	for inline.HasMorePages() {
		page, err := inline.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog: list inline policies for %s: %w", aws.ToString(roleName), err)
		}
		for _, name := range page.PolicyNames {
			rp, err := c.Client.GetRolePolicy(ctx, &iam.GetRolePolicyInput{RoleName: roleName, PolicyName: aws.String(name)})
			if err != nil {
				return nil, fmt.Errorf("catalog: get inline policy %s: %w", name, err)
			}
			d, err := decodeDocument(name, aws.ToString(rp.PolicyDocument))
			if err != nil {
				return nil, err
			}
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// IAM returns policy documents URL-encoded.
func decodeDocument(name, raw string) (policy.Document, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return policy.Document{}, fmt.Errorf("catalog: decode policy %s: %w", name, err)
	}
	return policy.Parse(name, []byte(decoded))
}
